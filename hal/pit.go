package hal

import (
	"sync"
	"time"
)

// I/O ports of the 8254 programmable interval timer.
const (
	PITCounter0 uint16 = 0x40
	PITControl  uint16 = 0x43
)

// PITFreq is the 8254 input clock in Hz.
const PITFreq = 1193180

// PIT emulates counter 0 of an 8254. Only the reload value matters here: it
// sets the rate at which the clock device raises IRQ 0.
type PIT struct {
	_ [0]func() // prevent accidental copying.

	mu      sync.Mutex
	divisor uint16 // 0 means 65536
	mode    uint8
	access  uint8 // 1: lsb, 2: msb, 3: lsb then msb
	hiNext  bool
	partial uint8
	readHi  bool
	changed chan struct{}
}

// NewPIT returns a timer with the power-on reload value 0 (about 18.2 Hz).
func NewPIT() *PIT {
	return &PIT{access: 3, changed: make(chan struct{}, 1)}
}

// Outb decodes writes to the PIT ports. It reports whether port was one of them.
func (p *PIT) Outb(port uint16, v uint8) bool {
	switch port {
	case PITControl:
		p.mu.Lock()
		if v>>6 == 0 { // counter 0 only
			if access := (v >> 4) & 3; access != 0 {
				p.access = access
				p.mode = (v >> 1) & 7
				p.hiNext = access == 2
				p.readHi = false
			}
		}
		p.mu.Unlock()
		return true
	case PITCounter0:
		p.mu.Lock()
		done := false
		switch p.access {
		case 1:
			p.divisor = uint16(v)
			done = true
		case 2:
			p.divisor = uint16(v) << 8
			done = true
		default:
			if !p.hiNext {
				p.partial = v
				p.hiNext = true
			} else {
				p.divisor = uint16(p.partial) | uint16(v)<<8
				p.hiNext = false
				done = true
			}
		}
		p.mu.Unlock()
		if done {
			select {
			case p.changed <- struct{}{}:
			default:
			}
		}
		return true
	case PITCounter0 + 1, PITCounter0 + 2:
		return true
	}
	return false
}

// Inb decodes reads from the PIT ports. Counter 0 reads back the reload
// value in the programmed access order.
func (p *PIT) Inb(port uint16) (uint8, bool) {
	if port != PITCounter0 {
		return 0, port > PITCounter0 && port <= PITControl
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.access {
	case 1:
		return uint8(p.divisor), true
	case 2:
		return uint8(p.divisor >> 8), true
	}
	v := uint8(p.divisor)
	if p.readHi {
		v = uint8(p.divisor >> 8)
	}
	p.readHi = !p.readHi
	return v, true
}

// Mode returns the programmed counter mode.
func (p *PIT) Mode() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Divisor returns the reload value, with 0 read as 65536.
func (p *PIT) Divisor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.divisor == 0 {
		return 65536
	}
	return int(p.divisor)
}

// Period returns the time between two IRQ 0 edges.
func (p *PIT) Period() time.Duration {
	return time.Duration(p.Divisor()) * time.Second / PITFreq
}

// Changed is signalled when a new reload value has been written.
func (p *PIT) Changed() <-chan struct{} { return p.changed }
