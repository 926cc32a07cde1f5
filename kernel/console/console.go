// Package console is the kernel's text output device.
//
// Output goes to the HAL logger one line at a time and, when the machine has
// a framebuffer, to a VT100-style terminal drawn on it. Once the thread
// system is up, a kernel lock keeps lines from different threads from being
// interleaved.
package console

import (
	"fmt"
	"io"

	"ember/hal"
	"ember/kernel/debug"
	"ember/kernel/intr"
	"ember/kernel/threads"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// Console serializes kernel output. Its zero value is not usable; call New.
type Console struct {
	_ [0]func() // prevent accidental copying.

	log  hal.Logger
	fb   hal.Framebuffer
	term *tinyterm.Terminal

	// Set by Init. Before that there is only one thread and no lock is
	// needed.
	ic    *intr.Controller
	lock  *threads.Lock
	depth int // extra acquisitions by the holder

	line  []byte
	chars int64
}

// New returns a console writing to h's logger and framebuffer.
func New(h hal.HAL) *Console {
	c := &Console{log: h.Logger()}
	if d := h.Display(); d != nil {
		c.fb = d.Framebuffer()
	}
	if c.fb != nil {
		c.fb.ClearRGB(0, 0, 0)
		c.term = tinyterm.NewTerminal(hal.NewFBDisplay(c.fb))
		c.term.Configure(&tinyterm.Config{
			Font:              &proggy.TinySZ8pt7b,
			FontHeight:        10,
			FontOffset:        6,
			UseSoftwareScroll: true,
		})
	}
	return c
}

// Init enables the console lock. It must be called after the thread system
// has been initialized.
func (c *Console) Init(ic *intr.Controller, s *threads.Scheduler) {
	c.ic = ic
	c.lock = s.NewLock()
}

// Write writes p to the console. It implements io.Writer and never fails.
func (c *Console) Write(p []byte) (int, error) {
	locked := c.acquire()
	for _, b := range p {
		c.putc(b)
	}
	c.display()
	c.release(locked)
	return len(p), nil
}

// Puts writes s to the console.
func (c *Console) Puts(s string) {
	locked := c.acquire()
	for i := 0; i < len(s); i++ {
		c.putc(s[i])
	}
	c.display()
	c.release(locked)
}

// Putc writes one character.
func (c *Console) Putc(b byte) {
	locked := c.acquire()
	c.putc(b)
	c.display()
	c.release(locked)
}

// Printf formats according to format and writes the result to the console.
// The whole message is written under one acquisition of the lock.
func (c *Console) Printf(format string, args ...any) {
	locked := c.acquire()
	fmt.Fprintf(c, format, args...)
	c.release(locked)
}

// Flush writes out a partial line.
func (c *Console) Flush() {
	locked := c.acquire()
	c.flush()
	c.release(locked)
}

// Chars returns the number of characters written so far.
func (c *Console) Chars() int64 { return c.chars }

// PrintStats writes the character count to w.
func (c *Console) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Console: %d characters output\n", c.chars)
}

// Panic makes the console usable from a panicking thread: it writes out any
// partial line and stops taking the lock, whose holder may be the thread
// that panicked.
func (c *Console) Panic() {
	c.flush()
	c.lock = nil
}

// locking reports whether output must take the lock. Interrupt handlers
// cannot sleep, and after a panic the lock may never be released.
func (c *Console) locking() bool {
	return c.lock != nil && !c.ic.Context() && !debug.InPanicMode()
}

// acquire takes the console lock unless the current thread already holds
// it, so that a thread printing from inside Printf does not deadlock.
func (c *Console) acquire() bool {
	if !c.locking() {
		return false
	}
	if c.lock.HeldByCurrent() {
		c.depth++
	} else {
		c.lock.Acquire()
	}
	return true
}

func (c *Console) release(locked bool) {
	if !locked || c.lock == nil {
		return
	}
	if c.depth > 0 {
		c.depth--
	} else {
		c.lock.Release()
	}
}

func (c *Console) putc(b byte) {
	c.chars++
	if c.term != nil {
		_ = c.term.WriteByte(b)
	}
	if b == '\n' {
		if c.log != nil {
			c.log.WriteLineBytes(c.line)
		}
		c.line = c.line[:0]
		return
	}
	c.line = append(c.line, b)
}

func (c *Console) flush() {
	if len(c.line) == 0 {
		return
	}
	if c.log != nil {
		c.log.WriteLineBytes(c.line)
	}
	c.line = c.line[:0]
}

func (c *Console) display() {
	if c.term != nil {
		c.term.Display()
	}
}
