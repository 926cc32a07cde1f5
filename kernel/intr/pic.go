package intr

import (
	"ember/hal"
	"ember/kernel/debug"
)

// picInit remaps the two 8259A controllers. By default they deliver IRQs
// 0-15 on vectors 0x08-0x0f and 0x70-0x77, which collide with CPU
// exceptions; move them to ExtBase..ExtEnd-1.
func (c *Controller) picInit() {
	p := c.ports

	// Mask all interrupts on both PICs.
	p.Outb(hal.PIC0Data, 0xff)
	p.Outb(hal.PIC1Data, 0xff)

	// Initialize master: edge triggered with ICW4, IR0..7 -> 0x20..0x27,
	// slave on IR2, 8086 mode with normal EOI.
	p.Outb(hal.PIC0Cmd, 0x11)
	p.Outb(hal.PIC0Data, ExtBase)
	p.Outb(hal.PIC0Data, 0x04)
	p.Outb(hal.PIC0Data, 0x01)

	// Initialize slave: IR0..7 -> 0x28..0x2f, slave ID 2.
	p.Outb(hal.PIC1Cmd, 0x11)
	p.Outb(hal.PIC1Data, ExtBase+8)
	p.Outb(hal.PIC1Data, 0x02)
	p.Outb(hal.PIC1Data, 0x01)

	// Unmask all interrupts.
	p.Outb(hal.PIC0Data, 0x00)
	p.Outb(hal.PIC1Data, 0x00)
}

// endOfInterrupt acknowledges vec at the controllers. Until then no further
// interrupt is delivered on that line.
func (c *Controller) endOfInterrupt(vec uint8) {
	debug.Assert(IsExternal(vec), "IsExternal(vec)")

	c.ports.Outb(hal.PIC0Cmd, 0x20)
	if vec >= ExtBase+8 {
		c.ports.Outb(hal.PIC1Cmd, 0x20)
	}
}

// Mask masks or unmasks IRQ line irq (0-15) at the controllers.
func (c *Controller) Mask(irq int, masked bool) {
	debug.Assert(irq >= 0 && irq < 16, "irq >= 0 && irq < 16")

	port := hal.PIC0Data
	line := uint(irq)
	if irq >= 8 {
		port = hal.PIC1Data
		line -= 8
	}
	imr := c.ports.Inb(port)
	if masked {
		imr |= 1 << line
	} else {
		imr &^= 1 << line
	}
	c.ports.Outb(port, imr)
}
