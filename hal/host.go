//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	pic    *PIC
	pit    *PIT
	bus    *portBus
	power  *hostPower
}

// New returns a host HAL implementation logging to stdout.
func New() HAL {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter returns a host HAL whose logger writes to w.
func NewWithWriter(w io.Writer) HAL {
	pic := NewPIC()
	pit := NewPIT()
	return &hostHAL{
		logger: &hostLogger{w: w},
		fb:     newHostFramebuffer(320, 320),
		pic:    pic,
		pit:    pit,
		bus:    &portBus{pic: pic, pit: pit},
		power:  newHostPower(),
	}
}

func (h *hostHAL) Logger() Logger         { return h.logger }
func (h *hostHAL) Display() Display       { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Ports() Ports           { return h.bus }
func (h *hostHAL) Interrupts() Interrupts { return h.pic }
func (h *hostHAL) Power() Power           { return h.power }

// RaiseIRQ implements IRQRaiser.
func (h *hostHAL) RaiseIRQ(irq int) { h.pic.Raise(irq) }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// portBus routes port I/O to the emulated chips.
type portBus struct {
	pic *PIC
	pit *PIT
}

func (b *portBus) Outb(port uint16, v uint8) {
	if b.pic.Outb(port, v) {
		return
	}
	b.pit.Outb(port, v)
}

func (b *portBus) Inb(port uint16) uint8 {
	if v, ok := b.pic.Inb(port); ok {
		return v
	}
	if v, ok := b.pit.Inb(port); ok {
		return v
	}
	return 0xff
}

type hostPower struct {
	once sync.Once
	off  chan struct{}
	err  error
}

func newHostPower() *hostPower {
	return &hostPower{off: make(chan struct{})}
}

func (p *hostPower) PowerOff(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.off)
	})
}
