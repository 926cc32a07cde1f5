package timer

import (
	"context"
	"io"
	"strings"
	"testing"

	"ember/hal"
	"ember/kernel/intr"
	"ember/kernel/threads"
)

func boot(t *testing.T, freq int) (*Timer, *threads.Scheduler, hal.HAL) {
	t.Helper()

	h := hal.NewWithWriter(io.Discard)
	ic := intr.New(h)
	ic.Init()
	s := threads.New(ic, 16)
	s.Init()
	tm := New(h, ic, s, freq)
	tm.Init()
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hal.RunClock(ctx, h)
	return tm, s, h
}

func TestInitProgramsPIT(t *testing.T) {
	_, _, h := boot(t, 1000)

	lo := h.Ports().Inb(hal.PITCounter0)
	hi := h.Ports().Inb(hal.PITCounter0)
	if got, want := int(lo)|int(hi)<<8, (hal.PITFreq+500)/1000; got != want {
		t.Fatalf("PIT reload = %d, want %d", got, want)
	}
}

func TestFreqBounds(t *testing.T) {
	h := hal.NewWithWriter(io.Discard)
	ic := intr.New(h)
	for _, freq := range []int{MinFreq - 1, MaxFreq + 1} {
		panicked := func() (p bool) {
			defer func() { p = recover() != nil }()
			New(h, ic, nil, freq)
			return false
		}()
		if !panicked {
			t.Fatalf("New(freq=%d) did not panic", freq)
		}
	}
}

func TestSleepWaitsAtLeastN(t *testing.T) {
	tm, _, _ := boot(t, 1000)

	start := tm.Ticks()
	tm.Sleep(20)
	if got := tm.Elapsed(start); got < 20 {
		t.Fatalf("Elapsed() = %d after Sleep(20), want at least 20", got)
	}
}

func TestSleepNonPositiveReturns(t *testing.T) {
	tm, s, _ := boot(t, 1000)

	for _, n := range []int64{0, -100} {
		tm.Sleep(n)
		if got := s.Sleepers(); got != 0 {
			t.Fatalf("Sleepers() = %d after Sleep(%d), want 0", got, n)
		}
	}
}

func TestSimultaneousWakeups(t *testing.T) {
	tm, s, _ := boot(t, 1000)

	done := s.NewSemaphore(0)
	wake := tm.Ticks() + 30
	woke := make([]int64, 3)
	for i := range woke {
		_, err := s.Create("sleeper", threads.PriDefault, func(aux any) {
			i := aux.(int)
			tm.Sleep(wake - tm.Ticks())
			woke[i] = tm.Ticks()
			done.Up()
		}, i)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	for range woke {
		done.Down()
	}
	if got := s.Sleepers(); got != 0 {
		t.Fatalf("Sleepers() = %d, want 0", got)
	}

	for i, w := range woke {
		if w < wake {
			t.Fatalf("thread %d woke at %d, want at least %d", i, w, wake)
		}
	}
}

func TestPrintStats(t *testing.T) {
	tm, _, _ := boot(t, 1000)
	tm.Msleep(5)

	var b strings.Builder
	tm.PrintStats(&b)
	if !strings.HasPrefix(b.String(), "Timer: ") || !strings.HasSuffix(b.String(), " ticks\n") {
		t.Fatalf("PrintStats() = %q", b.String())
	}
	if tm.Ticks() < 5 {
		t.Fatalf("Ticks() = %d after Msleep(5) at 1000 Hz", tm.Ticks())
	}
}
