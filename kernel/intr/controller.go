package intr

import (
	"runtime"

	"ember/hal"
	"ember/kernel/debug"
)

type vector struct {
	handler Handler
	name    string
	gate    Gate
}

// Controller owns the vector table and the interrupt level of the one
// processor. It is not safe for concurrent use: only the running kernel
// thread calls it.
type Controller struct {
	_ [0]func() // prevent accidental copying.

	ports hal.Ports
	irq   hal.Interrupts

	vectors [NumVectors]vector
	level   Level

	inExternal    bool // servicing an external interrupt
	yieldOnReturn bool // yield when the external handler returns
	yield         func()

	unexpected uint64
}

// New returns a controller for the machine h. Interrupts start disabled and
// no vector is registered; call Init before enabling interrupts.
func New(h hal.HAL) *Controller {
	return &Controller{
		ports: h.Ports(),
		irq:   h.Interrupts(),
		level: Off,
	}
}

// Init names the CPU exceptions and programs the interrupt controllers.
func (c *Controller) Init() {
	for i := range c.vectors {
		c.vectors[i].name = "unknown"
	}
	for vec, name := range exceptionNames {
		c.vectors[vec].name = name
	}
	c.picInit()
}

// SetYield installs the function run when an external handler asked to
// yield. The thread system installs its yield here.
func (c *Controller) SetYield(fn func()) {
	c.yield = fn
}

// Register installs h for vec behind gate g. Registering a vector twice, or
// a vector in the wrong range for its gate, is a fatal error.
func (c *Controller) Register(vec uint8, g Gate, h Handler, name string) {
	debug.Assert(h != nil, "h != nil")
	debug.Assert(c.vectors[vec].handler == nil, "vector %#04x already registered as %q", vec, c.vectors[vec].name)

	switch g := g.(type) {
	case External:
		debug.Assert(IsExternal(vec), "external vector %#04x outside %#04x..%#04x", vec, ExtBase, ExtEnd-1)
	case Internal:
		debug.Assert(!IsExternal(vec), "internal vector %#04x inside the external range", vec)
		debug.Assert(g.DPL == 0 || g.DPL == 3, "g.DPL == 0 || g.DPL == 3")
		debug.Assert(g.Level == On || g.Level == Off, "g.Level == On || g.Level == Off")
	default:
		debug.Panicf("unknown gate %T for vector %#04x", g, vec)
	}

	c.vectors[vec] = vector{handler: h, name: name, gate: g}
}

// RegisterExt registers h for external vector vec. The handler runs with
// interrupts off.
func (c *Controller) RegisterExt(vec uint8, h Handler, name string) {
	c.Register(vec, External{}, h, name)
}

// RegisterInt registers h for internal vector vec. dpl is the least
// privileged ring that may raise it with SoftInt; level is the interrupt
// level the handler runs at.
func (c *Controller) RegisterInt(vec uint8, dpl uint8, level Level, h Handler, name string) {
	c.Register(vec, Internal{DPL: dpl, Level: level}, h, name)
}

// Name returns the registered name of vec.
func (c *Controller) Name(vec uint8) string {
	if n := c.vectors[vec].name; n != "" {
		return n
	}
	return "unknown"
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level { return c.level }

// SetLevel sets the interrupt level and returns the previous one.
func (c *Controller) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// Enable enables interrupts, takes any that are pending, and returns the
// previous level. It must not be called from an external handler.
func (c *Controller) Enable() Level {
	debug.Assert(!c.inExternal, "!intr.Context()")
	old := c.level
	c.level = On
	c.deliver()
	return old
}

// Disable disables interrupts and returns the previous level.
func (c *Controller) Disable() Level {
	old := c.level
	c.level = Off
	return old
}

// Context reports whether an external interrupt is being serviced.
func (c *Controller) Context() bool { return c.inExternal }

// YieldOnReturn asks for a yield once the current external handler has
// returned. It may only be called from an external handler.
func (c *Controller) YieldOnReturn() {
	debug.Assert(c.inExternal, "intr.Context()")
	c.yieldOnReturn = true
}

// Unexpected returns the number of unexpected interrupts seen.
func (c *Controller) Unexpected() uint64 { return c.unexpected }

// Halt enables interrupts and waits until at least one has been handled,
// like sti followed by hlt. The level is On when it returns.
func (c *Controller) Halt() {
	c.level = On
	for {
		if c.deliver() > 0 {
			return
		}
		<-c.irq.Pending()
	}
}

// Poll takes pending interrupts if they are enabled. Long-running loops
// call it so that they can be preempted.
func (c *Controller) Poll() {
	if c.level == On {
		c.deliver()
	}
}

// deliver takes deliverable requests while interrupts are enabled and
// returns how many were handled. Nothing is delivered after a panic.
func (c *Controller) deliver() int {
	n := 0
	for c.level == On && !debug.InPanicMode() {
		vec, ok := c.irq.Acknowledge()
		if !ok {
			break
		}
		c.enter(&Frame{Vec: vec, CS: selKCode}, External{})
		n++
	}
	return n
}

// SoftInt executes "int $vec" at privilege level cpl. A vector whose gate is
// more privileged than cpl raises a general protection fault instead.
func (c *Controller) SoftInt(vec uint8, cpl uint8) {
	debug.Assert(cpl == 0 || cpl == 3, "cpl == 0 || cpl == 3")

	cs := selKCode
	if cpl == 3 {
		cs = selUCode
	}

	var dpl uint8
	g := c.vectors[vec].gate
	if in, ok := g.(Internal); ok {
		dpl = in.DPL
	}
	if cpl > dpl {
		// Error code: IDT entry, index vec.
		f := &Frame{Vec: VecGP, ErrorCode: uint64(vec)<<3 | 2, CS: cs}
		c.enter(f, c.vectors[VecGP].gate)
		return
	}
	if g == nil {
		g = Internal{}
	}
	c.enter(&Frame{Vec: vec, CS: cs}, g)
}

// enter models the processor's interrupt entry and iret: the interrupt
// level is set by the gate and restored from the saved flags afterwards.
func (c *Controller) enter(f *Frame, g Gate) {
	if pc, _, _, ok := runtime.Caller(2); ok {
		f.RIP = uint64(pc)
	}
	if f.CS == selUCode {
		f.SS, f.DS, f.ES = selUData, selUData, selUData
	} else {
		f.SS, f.DS, f.ES = selKData, selKData, selKData
	}
	if c.level == On {
		f.RFLAGS |= flagIF
	}

	saved := c.level
	if in, ok := g.(Internal); !ok || in.Level == Off {
		c.level = Off
	}
	c.Dispatch(f)
	c.level = saved
}

// Dispatch runs the handler for f.Vec. External interrupts are bracketed by
// the in-service bookkeeping, the controller EOI and the deferred yield.
func (c *Controller) Dispatch(f *Frame) {
	external := IsExternal(f.Vec)
	if external {
		debug.Assert(c.level == Off, "intr.Level() == intr.Off")
		debug.Assert(!c.inExternal, "!intr.Context()")

		c.inExternal = true
		c.yieldOnReturn = false
	}

	v := &c.vectors[f.Vec]
	switch {
	case v.handler != nil:
		v.handler(f)
	case f.Vec == SpuriousMaster || f.Vec == SpuriousSlave:
		// Spurious; ignore.
	default:
		c.unexpected++
		debug.PanicDump(c.DumpFrame(f), "Unexpected interrupt %#04x (%s)", f.Vec, c.Name(f.Vec))
	}

	if external {
		debug.Assert(c.level == Off, "intr.Level() == intr.Off")
		debug.Assert(c.inExternal, "intr.Context()")

		c.inExternal = false
		c.endOfInterrupt(f.Vec)

		if c.yieldOnReturn && c.yield != nil {
			c.yield()
		}
	}
}

var exceptionNames = map[uint8]string{
	0:  "#DE Divide Error",
	1:  "#DB Debug Exception",
	2:  "NMI Interrupt",
	3:  "#BP Breakpoint Exception",
	4:  "#OF Overflow Exception",
	5:  "#BR BOUND Range Exceeded Exception",
	6:  "#UD Invalid Opcode Exception",
	7:  "#NM Device Not Available Exception",
	8:  "#DF Double Fault Exception",
	9:  "Coprocessor Segment Overrun",
	10: "#TS Invalid TSS Exception",
	11: "#NP Segment Not Present",
	12: "#SS Stack Fault Exception",
	13: "#GP General Protection Exception",
	14: "#PF Page-Fault Exception",
	16: "#MF x87 FPU Floating-Point Error",
	17: "#AC Alignment Check Exception",
	18: "#MC Machine-Check Exception",
	19: "#XF SIMD Floating-Point Exception",
}
