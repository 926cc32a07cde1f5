package console

import (
	"bytes"
	"strings"
	"testing"

	"ember/hal"
	"ember/kernel/intr"
	"ember/kernel/threads"
)

type machine struct {
	h   hal.HAL
	out *bytes.Buffer
	ic  *intr.Controller
	s   *threads.Scheduler
	c   *Console
}

func boot(t *testing.T) *machine {
	t.Helper()

	out := new(bytes.Buffer)
	h := hal.NewWithWriter(out)
	ic := intr.New(h)
	ic.Init()
	s := threads.New(ic, 8)
	s.Init()
	c := New(h)
	c.Init(ic, s)
	s.Start()
	return &machine{h: h, out: out, ic: ic, s: s, c: c}
}

func TestLineBuffering(t *testing.T) {
	m := boot(t)

	m.c.Puts("hello\n\nwor")
	if got, want := m.out.String(), "hello\n\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	m.c.Putc('l')
	m.c.Flush()
	if got, want := m.out.String(), "hello\n\nworl\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if got := m.c.Chars(); got != 11 {
		t.Fatalf("Chars() = %d, want 11", got)
	}

	var b strings.Builder
	m.c.PrintStats(&b)
	if got, want := b.String(), "Console: 11 characters output\n"; got != want {
		t.Fatalf("PrintStats() = %q, want %q", got, want)
	}
}

func TestEarlyOutputBeforeInit(t *testing.T) {
	out := new(bytes.Buffer)
	c := New(hal.NewWithWriter(out))
	c.Printf("boot %d\n", 1)
	if got, want := out.String(), "boot 1\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

// nested prints to the console while being formatted.
type nested struct{ c *Console }

func (n nested) String() string {
	n.c.Puts("inner\n")
	return "outer"
}

func TestNestedOutputByHolder(t *testing.T) {
	m := boot(t)

	m.c.Printf("%v\n", nested{m.c})
	if got, want := m.out.String(), "inner\nouter\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if m.c.depth != 0 {
		t.Fatalf("depth = %d after nested output, want 0", m.c.depth)
	}
}

// yielder gives up the processor while its line is being formatted.
type yielder struct {
	s    *threads.Scheduler
	text string
}

func (y yielder) String() string {
	y.s.Yield()
	return y.text
}

func TestLinesNotInterleaved(t *testing.T) {
	m := boot(t)

	done := m.s.NewSemaphore(0)
	for _, name := range []string{"a", "b"} {
		_, err := m.s.Create(name, threads.PriDefault-1, func(aux any) {
			m.c.Printf("%s-start %v\n", aux, yielder{m.s, "end"})
			done.Up()
		}, name)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	done.Down()
	done.Down()

	if got, want := m.out.String(), "a-start end\nb-start end\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestOutputFromInterruptHandler(t *testing.T) {
	m := boot(t)

	m.ic.RegisterExt(0x21, func(*intr.Frame) { m.c.Puts("irq\n") }, "keyboard")
	m.h.(hal.IRQRaiser).RaiseIRQ(1)
	m.ic.Poll()

	if got, want := m.out.String(), "irq\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestTerminalDrawsOnFramebuffer(t *testing.T) {
	m := boot(t)
	fb := m.h.Display().Framebuffer()

	m.c.Puts("X\n")

	lit := false
	for _, b := range fb.Buffer() {
		if b != 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Fatal("no pixel drawn for console output")
	}
}
