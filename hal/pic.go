package hal

import "sync"

// I/O ports of the two cascaded 8259A controllers.
const (
	PIC0Cmd  uint16 = 0x20
	PIC0Data uint16 = 0x21
	PIC1Cmd  uint16 = 0xa0
	PIC1Data uint16 = 0xa1
)

// pic8259 is one 8259A chip: request, in-service and mask registers plus the
// initialization command word sequence.
type pic8259 struct {
	irr uint8 // Interrupt Request Register
	isr uint8 // In-Service Register
	imr uint8 // Interrupt Mask Register

	base    uint8 // ICW2: vector of line 0
	cascade uint8 // ICW3
	autoEOI bool  // ICW4 AEOI

	icw      int // next ICW expected on the data port, 0 when done
	needICW4 bool
	single   bool
	readISR  bool // OCW3 RR/RIS
	ready    bool // completed at least one ICW sequence
}

func (c *pic8259) writeCmd(v uint8) (changed bool) {
	switch {
	case v&0x10 != 0: // ICW1
		c.isr = 0
		c.imr = 0
		c.readISR = false
		c.needICW4 = v&0x01 != 0
		c.single = v&0x02 != 0
		c.autoEOI = false
		c.ready = false
		c.icw = 2
		return true
	case v&0x08 != 0: // OCW3
		if v&0x02 != 0 {
			c.readISR = v&0x01 != 0
		}
		return false
	default: // OCW2
		switch v >> 5 {
		case 0x1: // non-specific EOI
			if c.isr != 0 {
				c.isr &^= lowestBit(c.isr)
			}
			return true
		case 0x3: // specific EOI
			c.isr &^= 1 << (v & 7)
			return true
		}
		return false
	}
}

func (c *pic8259) writeData(v uint8) (changed bool) {
	switch c.icw {
	case 2:
		c.base = v & 0xf8
		switch {
		case !c.single:
			c.icw = 3
		case c.needICW4:
			c.icw = 4
		default:
			c.finishInit()
		}
	case 3:
		c.cascade = v
		if c.needICW4 {
			c.icw = 4
		} else {
			c.finishInit()
		}
	case 4:
		c.autoEOI = v&0x02 != 0
		c.finishInit()
	default: // OCW1
		c.imr = v
	}
	return true
}

func (c *pic8259) finishInit() {
	c.icw = 0
	c.ready = true
}

func (c *pic8259) readCmd() uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

// request returns the line that would be acknowledged next given the extra
// request bits in extra, or -1. Fully nested mode: line 0 is the highest
// priority and an in-service line blocks itself and everything below it.
func (c *pic8259) request(extra uint8) int {
	if !c.ready || c.icw != 0 {
		return -1
	}
	req := (c.irr | extra) &^ c.imr
	if req == 0 {
		return -1
	}
	line := bitIndex(lowestBit(req))
	if c.isr != 0 && bitIndex(lowestBit(c.isr)) <= line {
		return -1
	}
	return line
}

func (c *pic8259) accept(line int) {
	c.irr &^= 1 << line
	if !c.autoEOI {
		c.isr |= 1 << line
	}
}

// PIC emulates the master/slave 8259A pair of a PC. The slave's INT output
// drives master line 2.
//
// Devices call Raise from any goroutine. The CPU side is Acknowledge and
// Pending; the kernel programs it through the port bus.
type PIC struct {
	_ [0]func() // prevent accidental copying.

	mu      sync.Mutex
	master  pic8259
	slave   pic8259
	pending chan struct{}
}

const cascadeLine = 2

// NewPIC returns a controller pair in its power-on state: not initialized,
// so nothing is delivered until the ICW sequence has been written.
func NewPIC() *PIC {
	return &PIC{pending: make(chan struct{}, 1)}
}

// Raise sets the request bit of irq (0-15). Edge triggered: a request that
// is already pending is not counted twice.
func (p *PIC) Raise(irq int) {
	if irq < 0 || irq > 15 {
		return
	}
	p.mu.Lock()
	if irq < 8 {
		p.master.irr |= 1 << irq
	} else {
		p.slave.irr |= 1 << (irq - 8)
	}
	p.mu.Unlock()
	p.notify()
}

// Outb decodes writes to the PIC ports. It reports whether port was one of them.
func (p *PIC) Outb(port uint16, v uint8) bool {
	var changed bool
	p.mu.Lock()
	switch port {
	case PIC0Cmd:
		changed = p.master.writeCmd(v)
	case PIC0Data:
		changed = p.master.writeData(v)
	case PIC1Cmd:
		changed = p.slave.writeCmd(v)
	case PIC1Data:
		changed = p.slave.writeData(v)
	default:
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	if changed {
		p.notify()
	}
	return true
}

// Inb decodes reads from the PIC ports: IRR or ISR on the command port
// (per OCW3), IMR on the data port.
func (p *PIC) Inb(port uint16) (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch port {
	case PIC0Cmd:
		return p.master.readCmd(), true
	case PIC0Data:
		return p.master.imr, true
	case PIC1Cmd:
		return p.slave.readCmd(), true
	case PIC1Data:
		return p.slave.imr, true
	}
	return 0, false
}

// Acknowledge implements Interrupts.
func (p *PIC) Acknowledge() (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var cascaded uint8
	slaveLine := p.slave.request(0)
	if slaveLine >= 0 && p.master.cascade&(1<<cascadeLine) != 0 {
		cascaded = 1 << cascadeLine
	}

	line := p.master.request(cascaded)
	if line < 0 {
		return 0, false
	}
	if line == cascadeLine && cascaded != 0 {
		p.master.accept(line)
		p.slave.accept(slaveLine)
		return p.slave.base + uint8(slaveLine), true
	}
	p.master.accept(line)
	return p.master.base + uint8(line), true
}

// Pending implements Interrupts.
func (p *PIC) Pending() <-chan struct{} { return p.pending }

func (p *PIC) notify() {
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

func lowestBit(v uint8) uint8 { return v & -v }

func bitIndex(b uint8) int {
	n := 0
	for b > 1 {
		b >>= 1
		n++
	}
	return n
}
