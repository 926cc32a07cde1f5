package intr

import (
	"io"
	"strings"
	"testing"
	"time"

	"ember/hal"
	"ember/kernel/debug"
)

func newController(t *testing.T) (*Controller, hal.IRQRaiser) {
	t.Helper()
	h := hal.NewWithWriter(io.Discard)
	c := New(h)
	c.Init()
	return c, h.(hal.IRQRaiser)
}

func catchPanic(fn func()) (info *debug.PanicInfo) {
	defer func() {
		if r := recover(); r != nil {
			info, _ = r.(*debug.PanicInfo)
		}
	}()
	fn()
	return nil
}

func TestRegisterValidation(t *testing.T) {
	c, _ := newController(t)
	nop := func(*Frame) {}

	if catchPanic(func() { c.RegisterExt(0x30, nop, "too high") }) == nil {
		t.Fatal("RegisterExt(0x30) did not panic")
	}
	if catchPanic(func() { c.RegisterExt(0x1f, nop, "too low") }) == nil {
		t.Fatal("RegisterExt(0x1f) did not panic")
	}
	if catchPanic(func() { c.RegisterInt(0x21, 0, Off, nop, "external range") }) == nil {
		t.Fatal("RegisterInt(0x21) did not panic")
	}
	if catchPanic(func() { c.RegisterInt(0x30, 2, Off, nop, "bad dpl") }) == nil {
		t.Fatal("RegisterInt with DPL 2 did not panic")
	}

	c.RegisterExt(0x21, nop, "keyboard")
	if catchPanic(func() { c.RegisterExt(0x21, nop, "keyboard again") }) == nil {
		t.Fatal("registering 0x21 twice did not panic")
	}
	if got := c.Name(0x21); got != "keyboard" {
		t.Fatalf("Name(0x21) = %q, want %q", got, "keyboard")
	}
	if got := c.Name(VecGP); got != "#GP General Protection Exception" {
		t.Fatalf("Name(13) = %q", got)
	}
	if got := c.Name(0x80); got != "unknown" {
		t.Fatalf("Name(0x80) = %q, want %q", got, "unknown")
	}
}

func TestDeliveryWaitsForEnable(t *testing.T) {
	c, irq := newController(t)

	var calls int
	c.RegisterExt(0x21, func(f *Frame) {
		calls++
		if !c.Context() {
			t.Error("Context() = false inside an external handler")
		}
		if c.Level() != Off {
			t.Errorf("Level() = %v inside an external handler, want off", c.Level())
		}
		if f.Vec != 0x21 {
			t.Errorf("f.Vec = %#x, want 0x21", f.Vec)
		}
	}, "keyboard")

	irq.RaiseIRQ(1)
	c.Poll()
	if calls != 0 {
		t.Fatalf("handler ran %d times with interrupts off", calls)
	}

	if old := c.Enable(); old != Off {
		t.Fatalf("Enable() = %v, want off", old)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times after Enable, want 1", calls)
	}
	if c.Level() != On || c.Context() {
		t.Fatalf("after delivery Level() = %v, Context() = %v", c.Level(), c.Context())
	}

	// The EOI re-armed the line.
	irq.RaiseIRQ(1)
	c.Poll()
	if calls != 2 {
		t.Fatalf("handler ran %d times after second request, want 2", calls)
	}
}

func TestSetLevelRestores(t *testing.T) {
	c, _ := newController(t)
	if got := c.SetLevel(On); got != Off {
		t.Fatalf("SetLevel(On) = %v, want off", got)
	}
	old := c.Disable()
	if old != On || c.Level() != Off {
		t.Fatalf("Disable() = %v, Level() = %v", old, c.Level())
	}
	c.SetLevel(old)
	if c.Level() != On {
		t.Fatalf("Level() = %v after restore, want on", c.Level())
	}
	if On.String() != "on" || Off.String() != "off" {
		t.Fatalf("Level strings = %q, %q", On, Off)
	}
}

func TestYieldOnReturn(t *testing.T) {
	c, irq := newController(t)

	var yields int
	c.SetYield(func() {
		yields++
		if c.Context() {
			t.Error("yield ran inside the external handler")
		}
	})
	c.RegisterExt(0x20, func(*Frame) { c.YieldOnReturn() }, "timer")
	c.RegisterExt(0x21, func(*Frame) {}, "keyboard")

	c.Enable()
	irq.RaiseIRQ(0)
	c.Poll()
	if yields != 1 {
		t.Fatalf("yield ran %d times, want 1", yields)
	}

	// The request does not outlive the interrupt that made it.
	irq.RaiseIRQ(1)
	c.Poll()
	if yields != 1 {
		t.Fatalf("yield ran %d times after an unrelated interrupt, want 1", yields)
	}
}

func TestYieldOnReturnOutsideHandlerPanics(t *testing.T) {
	c, _ := newController(t)
	if catchPanic(c.YieldOnReturn) == nil {
		t.Fatal("YieldOnReturn() outside an external handler did not panic")
	}
}

func TestUnexpectedInterruptIsFatal(t *testing.T) {
	c, irq := newController(t)
	irq.RaiseIRQ(3)

	info := catchPanic(func() { c.Enable() })
	if info == nil {
		t.Fatal("unregistered vector 0x23 did not panic")
	}
	if !strings.Contains(info.Message, "Unexpected interrupt 0x23") {
		t.Fatalf("Message = %q", info.Message)
	}
	if !strings.HasPrefix(info.Dump, "Interrupt 0x23 (unknown) at rip=") {
		t.Fatalf("Dump = %q", info.Dump)
	}
	if c.Unexpected() != 1 {
		t.Fatalf("Unexpected() = %d, want 1", c.Unexpected())
	}
}

func TestSpuriousVectorsIgnored(t *testing.T) {
	c, irq := newController(t)
	irq.RaiseIRQ(7)
	irq.RaiseIRQ(15)
	if info := catchPanic(func() { c.Enable() }); info != nil {
		t.Fatalf("spurious interrupt panicked: %v", info)
	}
}

func TestMask(t *testing.T) {
	c, irq := newController(t)
	var calls int
	c.RegisterExt(0x2c, func(*Frame) { calls++ }, "mouse")

	c.Mask(12, true)
	irq.RaiseIRQ(12)
	c.Enable()
	if calls != 0 {
		t.Fatal("masked line was delivered")
	}
	c.Mask(12, false)
	c.Poll()
	if calls != 1 {
		t.Fatalf("handler ran %d times after unmask, want 1", calls)
	}
}

func TestSoftInt(t *testing.T) {
	c, _ := newController(t)

	var trapLevel, gateLevel Level
	var gp *Frame
	c.RegisterInt(0x30, 3, On, func(*Frame) { trapLevel = c.Level() }, "syscall")
	c.RegisterInt(0x31, 0, Off, func(*Frame) { gateLevel = c.Level() }, "kernel only")
	c.RegisterInt(VecGP, 0, On, func(f *Frame) { gp = f }, "#GP General Protection Exception")

	c.Enable()
	c.SoftInt(0x30, 3)
	if trapLevel != On {
		t.Fatalf("trap gate ran at level %v, want on", trapLevel)
	}

	c.SoftInt(0x31, 0)
	if gateLevel != Off {
		t.Fatalf("interrupt gate ran at level %v, want off", gateLevel)
	}
	if c.Level() != On {
		t.Fatalf("Level() = %v after iret, want on", c.Level())
	}

	gateLevel = On
	c.SoftInt(0x31, 3)
	if gp == nil {
		t.Fatal("user int $0x31 on a DPL 0 gate did not fault")
	}
	if gateLevel != On {
		t.Fatal("DPL 0 handler ran for a user caller")
	}
	if want := uint64(0x31<<3 | 2); gp.ErrorCode != want {
		t.Fatalf("#GP error code = %#x, want %#x", gp.ErrorCode, want)
	}
	if gp.CS != selUCode || gp.SS != selUData {
		t.Fatalf("#GP frame cs=%#x ss=%#x, want user selectors", gp.CS, gp.SS)
	}
}

func TestHaltWaitsForInterrupt(t *testing.T) {
	c, irq := newController(t)
	done := make(chan struct{})
	var calls int
	c.RegisterExt(0x20, func(*Frame) { calls++ }, "timer")

	go func() {
		time.Sleep(5 * time.Millisecond)
		irq.RaiseIRQ(0)
		close(done)
	}()
	c.Halt()
	<-done
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if c.Level() != On {
		t.Fatalf("Level() = %v after Halt, want on", c.Level())
	}
}
