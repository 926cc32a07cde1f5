// Package timer drives the 8254 programmable interval timer.
//
// Counter 0 is programmed to interrupt Freq times per second. Each interrupt
// advances the tick count and runs the thread system's per-tick work: time
// slice accounting, waking sleepers and checking for preemption.
package timer

import (
	"fmt"
	"io"

	"ember/hal"
	"ember/kernel/debug"
	"ember/kernel/intr"
	"ember/kernel/threads"
)

// Vector is the interrupt vector of IRQ 0.
const Vector = intr.ExtBase

// DefaultFreq is the default number of timer interrupts per second.
const DefaultFreq = 100

// Rates outside these bounds are rejected: below 19 Hz the 16-bit counter
// overflows, above 1000 Hz the tick overhead dominates.
const (
	MinFreq = 19
	MaxFreq = 1000
)

// Timer counts timer ticks since boot.
type Timer struct {
	_ [0]func() // prevent accidental copying.

	ic    *intr.Controller
	s     *threads.Scheduler
	ports hal.Ports
	freq  int

	ticks int64
}

// New returns a timer for the machine h that will tick freq times per
// second once Init has run.
func New(h hal.HAL, ic *intr.Controller, s *threads.Scheduler, freq int) *Timer {
	debug.Assert(freq >= MinFreq, "TIMER_FREQ >= %d, got %d", MinFreq, freq)
	debug.Assert(freq <= MaxFreq, "TIMER_FREQ <= %d, got %d", MaxFreq, freq)

	return &Timer{ic: ic, s: s, ports: h.Ports(), freq: freq}
}

// Init sets up the PIT to interrupt Freq times per second and registers the
// interrupt handler.
func (t *Timer) Init() {
	// 8254 input frequency divided by freq, rounded to nearest.
	count := (hal.PITFreq + t.freq/2) / t.freq

	// Counter 0, LSB then MSB, mode 2, binary.
	t.ports.Outb(hal.PITControl, 0x34)
	t.ports.Outb(hal.PITCounter0, uint8(count))
	t.ports.Outb(hal.PITCounter0, uint8(count>>8))

	t.ic.RegisterExt(Vector, t.interrupt, "8254 Timer")
}

// Freq returns the number of ticks per second.
func (t *Timer) Freq() int { return t.freq }

// Ticks returns the number of timer ticks since boot.
func (t *Timer) Ticks() int64 {
	old := t.ic.Disable()
	ticks := t.ticks
	t.ic.SetLevel(old)
	return ticks
}

// Elapsed returns the number of ticks since then, a value once returned by
// Ticks.
func (t *Timer) Elapsed(then int64) int64 {
	return t.Ticks() - then
}

// Sleep suspends the running thread for approximately n ticks. Interrupts
// must be on. A non-positive n returns at once.
func (t *Timer) Sleep(n int64) {
	if n <= 0 {
		return
	}
	debug.Assert(t.ic.Level() == intr.On, "intr.Level() == intr.On")

	start := t.Ticks()
	t.s.Sleep(start + n)
}

// Msleep suspends the running thread for approximately ms milliseconds,
// rounded up to whole ticks.
func (t *Timer) Msleep(ms int64) {
	t.Sleep((ms*int64(t.freq) + 999) / 1000)
}

// PrintStats writes the tick count to w.
func (t *Timer) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Timer: %d ticks\n", t.Ticks())
}

func (t *Timer) interrupt(*intr.Frame) {
	t.ticks++
	t.s.Tick()
	t.s.Awake(t.ticks)
	t.s.CheckPreempt()
}
