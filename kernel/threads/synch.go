package threads

import (
	"ember/kernel/debug"
	"ember/kernel/list"
)

// Semaphore is a nonnegative counter with two atomic operations: Down waits
// for the value to become positive and decrements it, Up increments it and
// wakes one waiter.
type Semaphore struct {
	_ [0]func() // prevent accidental copying.

	s       *Scheduler
	value   uint
	waiters list.List[*Thread]
}

// NewSemaphore returns a semaphore with the given initial value.
func (s *Scheduler) NewSemaphore(value uint) *Semaphore {
	sema := new(Semaphore)
	sema.Init(s, value)
	return sema
}

// Init initializes sema to value. It must be called before any other
// method.
func (sema *Semaphore) Init(s *Scheduler, value uint) {
	debug.Assert(s != nil, "s != nil")
	sema.s = s
	sema.value = value
	sema.waiters.Init()
}

// Down waits for the value to become positive and then decrements it.
//
// It may sleep, so it must not be called from an interrupt handler. It may
// be called with interrupts disabled; if it sleeps, the next thread will
// probably turn them back on.
func (sema *Semaphore) Down() {
	debug.Assert(sema.s != nil, "sema.s != nil")
	s := sema.s
	debug.Assert(!s.ic.Context(), "!intr.Context()")

	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	for sema.value == 0 {
		sema.waiters.PushBack(&s.Current().elem)
		s.Block()
	}
	sema.value--
}

// TryDown decrements the value if it is positive and reports whether it
// did. Safe in interrupt context.
func (sema *Semaphore) TryDown() bool {
	debug.Assert(sema.s != nil, "sema.s != nil")
	s := sema.s

	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	if sema.value > 0 {
		sema.value--
		return true
	}
	return false
}

// Up increments the value and wakes the longest waiting thread, if any.
// It does not preempt the caller. Safe in interrupt context.
func (sema *Semaphore) Up() {
	debug.Assert(sema.s != nil, "sema.s != nil")
	s := sema.s

	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	if !sema.waiters.Empty() {
		s.Unblock(sema.waiters.PopFront().Value)
	}
	sema.value++
}

// Value returns the current value.
func (sema *Semaphore) Value() uint {
	s := sema.s
	old := s.ic.Disable()
	defer s.ic.SetLevel(old)
	return sema.value
}

// Waiters returns the number of threads blocked in Down.
func (sema *Semaphore) Waiters() int {
	s := sema.s
	old := s.ic.Disable()
	defer s.ic.SetLevel(old)
	return sema.waiters.Len()
}

// Lock can be held by at most one thread at a time. It is not recursive:
// the holder must not acquire it again.
//
// A lock is a semaphore with initial value 1 plus an owner. Only the thread
// that acquired a lock may release it.
type Lock struct {
	_ [0]func() // prevent accidental copying.

	holder *Thread
	sema   Semaphore
}

// NewLock returns an unheld lock.
func (s *Scheduler) NewLock() *Lock {
	l := new(Lock)
	l.Init(s)
	return l
}

// Init initializes l as unheld.
func (l *Lock) Init(s *Scheduler) {
	l.holder = nil
	l.sema.Init(s, 1)
}

// Acquire waits until l is free and takes it. It may sleep, so it must not
// be called from an interrupt handler.
func (l *Lock) Acquire() {
	debug.Assert(!l.sema.s.ic.Context(), "!intr.Context()")
	debug.Assert(!l.HeldByCurrent(), "!l.HeldByCurrent()")

	l.sema.Down()
	l.holder = l.sema.s.Current()
}

// TryAcquire takes l if it is free and reports whether it did. It does not
// sleep.
func (l *Lock) TryAcquire() bool {
	debug.Assert(!l.HeldByCurrent(), "!l.HeldByCurrent()")

	ok := l.sema.TryDown()
	if ok {
		l.holder = l.sema.s.Current()
	}
	return ok
}

// Release releases l, which the running thread must hold.
func (l *Lock) Release() {
	debug.Assert(l.HeldByCurrent(), "l.HeldByCurrent()")

	l.holder = nil
	l.sema.Up()
}

// HeldByCurrent reports whether the running thread holds l.
func (l *Lock) HeldByCurrent() bool {
	return l.holder != nil && l.holder == l.sema.s.Current()
}

// Holder returns the thread holding l, or nil.
func (l *Lock) Holder() *Thread { return l.holder }

// Cond is a condition variable: it lets code signal a condition and
// cooperating code wait for it, under a lock.
//
// Signals are not atomic with reacquiring the lock (Mesa style): a woken
// waiter must recheck its condition.
type Cond struct {
	_ [0]func() // prevent accidental copying.

	s       *Scheduler
	waiters list.List[*condWaiter]
}

type condWaiter struct {
	elem list.Elem[*condWaiter]
	sema Semaphore
}

// NewCond returns a condition variable with no waiters.
func (s *Scheduler) NewCond() *Cond {
	c := new(Cond)
	c.Init(s)
	return c
}

// Init initializes c with no waiters.
func (c *Cond) Init(s *Scheduler) {
	c.s = s
	c.waiters.Init()
}

// Wait atomically releases l, which the caller must hold, and waits for a
// signal. l is held again when Wait returns.
func (c *Cond) Wait(l *Lock) {
	debug.Assert(l != nil, "l != nil")
	debug.Assert(!c.s.ic.Context(), "!intr.Context()")
	debug.Assert(l.HeldByCurrent(), "l.HeldByCurrent()")

	w := new(condWaiter)
	w.elem.Value = w
	w.sema.Init(c.s, 0)
	c.waiters.PushBack(&w.elem)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the longest waiting thread, if any. The caller must hold l.
func (c *Cond) Signal(l *Lock) {
	debug.Assert(l != nil, "l != nil")
	debug.Assert(!c.s.ic.Context(), "!intr.Context()")
	debug.Assert(l.HeldByCurrent(), "l.HeldByCurrent()")

	if !c.waiters.Empty() {
		c.waiters.PopFront().Value.sema.Up()
	}
}

// Broadcast wakes every waiting thread. The caller must hold l.
func (c *Cond) Broadcast(l *Lock) {
	debug.Assert(l != nil, "l != nil")
	debug.Assert(!c.s.ic.Context(), "!intr.Context()")
	debug.Assert(l.HeldByCurrent(), "l.HeldByCurrent()")

	for !c.waiters.Empty() {
		c.Signal(l)
	}
}

// Waiters returns the number of threads waiting on c.
func (c *Cond) Waiters() int { return c.waiters.Len() }
