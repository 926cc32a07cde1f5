package hal

import "testing"

// initPIC programs the pair the way the kernel does: vectors 0x20-0x2f,
// slave on master line 2, 8086 mode, everything unmasked.
func initPIC(p *PIC) {
	p.Outb(PIC0Data, 0xff)
	p.Outb(PIC1Data, 0xff)

	p.Outb(PIC0Cmd, 0x11)
	p.Outb(PIC0Data, 0x20)
	p.Outb(PIC0Data, 0x04)
	p.Outb(PIC0Data, 0x01)

	p.Outb(PIC1Cmd, 0x11)
	p.Outb(PIC1Data, 0x28)
	p.Outb(PIC1Data, 0x02)
	p.Outb(PIC1Data, 0x01)

	p.Outb(PIC0Data, 0x00)
	p.Outb(PIC1Data, 0x00)
}

func eoi(p *PIC, vec uint8) {
	p.Outb(PIC0Cmd, 0x20)
	if vec >= 0x28 {
		p.Outb(PIC1Cmd, 0x20)
	}
}

func TestPICUninitializedDeliversNothing(t *testing.T) {
	p := NewPIC()
	p.Raise(0)
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x, want nothing before ICW sequence", vec)
	}
}

func TestPICAcknowledgeAndEOI(t *testing.T) {
	p := NewPIC()
	initPIC(p)

	p.Raise(0)
	vec, ok := p.Acknowledge()
	if !ok || vec != 0x20 {
		t.Fatalf("Acknowledge() = %#x, %v, want 0x20, true", vec, ok)
	}

	// Line 0 stays in service until EOI; a new edge is held in IRR.
	p.Raise(0)
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x during service, want nothing", vec)
	}

	eoi(p, 0x20)
	if vec, ok := p.Acknowledge(); !ok || vec != 0x20 {
		t.Fatalf("Acknowledge() after EOI = %#x, %v, want 0x20, true", vec, ok)
	}
}

func TestPICEdgesCoalesce(t *testing.T) {
	p := NewPIC()
	initPIC(p)

	p.Raise(1)
	p.Raise(1)
	p.Raise(1)
	if vec, ok := p.Acknowledge(); !ok || vec != 0x21 {
		t.Fatalf("Acknowledge() = %#x, %v, want 0x21, true", vec, ok)
	}
	eoi(p, 0x21)
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x, want the three edges counted once", vec)
	}
}

func TestPICPriorityAndMask(t *testing.T) {
	p := NewPIC()
	initPIC(p)

	p.Raise(4)
	p.Raise(1)
	vec, _ := p.Acknowledge()
	if vec != 0x21 {
		t.Fatalf("Acknowledge() = %#x, want 0x21 (lower line wins)", vec)
	}
	// Line 4 is lower priority than the in-service line 1.
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x, want nothing while line 1 is in service", vec)
	}
	eoi(p, 0x21)

	p.Outb(PIC0Data, 1<<4)
	if got, _ := p.Inb(PIC0Data); got != 1<<4 {
		t.Fatalf("IMR = %#x, want %#x", got, 1<<4)
	}
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x, want masked line 4 held", vec)
	}
	p.Outb(PIC0Data, 0)
	if vec, ok := p.Acknowledge(); !ok || vec != 0x24 {
		t.Fatalf("Acknowledge() after unmask = %#x, %v, want 0x24, true", vec, ok)
	}
}

func TestPICCascade(t *testing.T) {
	p := NewPIC()
	initPIC(p)

	p.Raise(15)
	vec, ok := p.Acknowledge()
	if !ok || vec != 0x2f {
		t.Fatalf("Acknowledge() = %#x, %v, want 0x2f, true", vec, ok)
	}

	// OCW3: read ISR on both chips.
	p.Outb(PIC0Cmd, 0x0b)
	p.Outb(PIC1Cmd, 0x0b)
	if got, _ := p.Inb(PIC0Cmd); got != 1<<2 {
		t.Fatalf("master ISR = %#x, want cascade line", got)
	}
	if got, _ := p.Inb(PIC1Cmd); got != 1<<7 {
		t.Fatalf("slave ISR = %#x, want line 7", got)
	}

	// Master EOI alone leaves the slave line in service.
	p.Outb(PIC0Cmd, 0x20)
	p.Raise(15)
	if vec, ok := p.Acknowledge(); ok {
		t.Fatalf("Acknowledge() = %#x, want nothing before slave EOI", vec)
	}
	p.Outb(PIC1Cmd, 0x20)
	if vec, ok := p.Acknowledge(); !ok || vec != 0x2f {
		t.Fatalf("Acknowledge() after both EOIs = %#x, %v, want 0x2f, true", vec, ok)
	}
}

func TestPICSpecificEOI(t *testing.T) {
	p := NewPIC()
	initPIC(p)

	p.Raise(3)
	p.Acknowledge()
	p.Outb(PIC0Cmd, 0x60|3)
	p.Outb(PIC0Cmd, 0x0b)
	if got, _ := p.Inb(PIC0Cmd); got != 0 {
		t.Fatalf("ISR after specific EOI = %#x, want 0", got)
	}
}

func TestPICPendingSignals(t *testing.T) {
	p := NewPIC()
	initPIC(p)
	select {
	case <-p.Pending():
	default:
	}

	p.Raise(0)
	select {
	case <-p.Pending():
	default:
		t.Fatal("Raise did not signal Pending()")
	}
}

func TestPITProgramming(t *testing.T) {
	p := NewPIT()
	if got := p.Divisor(); got != 65536 {
		t.Fatalf("power-on Divisor() = %d, want 65536", got)
	}

	// Counter 0, LSB then MSB, mode 2, binary: 100 Hz.
	const count = (PITFreq + 50) / 100
	p.Outb(PITControl, 0x34)
	p.Outb(PITCounter0, count&0xff)
	p.Outb(PITCounter0, count>>8)

	if got := p.Divisor(); got != count {
		t.Fatalf("Divisor() = %d, want %d", got, count)
	}
	if got := p.Mode(); got != 2 {
		t.Fatalf("Mode() = %d, want 2", got)
	}
	select {
	case <-p.Changed():
	default:
		t.Fatal("reprogramming did not signal Changed()")
	}
	if got, want := p.Period().Milliseconds(), int64(10); got != want {
		t.Fatalf("Period() = %dms, want %dms", got, want)
	}
}

func TestPortBusRouting(t *testing.T) {
	h := NewWithWriter(new(discard)).(*hostHAL)
	ports := h.Ports()

	ports.Outb(PIC0Data, 0x5a)
	if got := ports.Inb(PIC0Data); got != 0x5a {
		t.Fatalf("Inb(PIC0Data) = %#x, want 0x5a", got)
	}
	if got := ports.Inb(0x3f8); got != 0xff {
		t.Fatalf("Inb(unmapped) = %#x, want 0xff", got)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
