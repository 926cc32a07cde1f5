package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Ports is the processor's I/O port space (in/out instructions).
//
// Reads from ports nothing decodes return 0xff, as on a floating bus.
type Ports interface {
	Outb(port uint16, v uint8)
	Inb(port uint16) uint8
}

// Interrupts is the CPU side of the interrupt controller.
type Interrupts interface {
	// Acknowledge runs one INTA cycle. It returns the vector of the
	// highest-priority deliverable request, or false if there is none.
	Acknowledge() (vec uint8, ok bool)

	// Pending is signalled whenever a request may have become deliverable.
	// Signals coalesce; a receiver must re-check with Acknowledge.
	Pending() <-chan struct{}
}

// Power switches the machine off. A non-nil err reports why.
type Power interface {
	PowerOff(err error)
}

// IRQRaiser is implemented by machines whose devices are emulated: it pulls
// an interrupt request line the way a device would.
type IRQRaiser interface {
	RaiseIRQ(irq int)
}

// HAL provides the only contact point between the kernel and the machine.
type HAL interface {
	Logger() Logger
	Display() Display
	Ports() Ports
	Interrupts() Interrupts
	Power() Power
}
