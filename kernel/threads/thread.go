// Package threads is the kernel thread system: control blocks, the
// fixed-priority scheduler, timed sleep, and the semaphore, lock and
// condition variable built on top of it.
//
// There is one processor. Every kernel data structure in this package is
// protected by disabling interrupts, never by a second lock. Each kernel
// thread is carried by its own goroutine, but exactly one of them runs at a
// time: the context switch hands the processor from one goroutine to the
// next and parks the first until it is switched back to.
package threads

import (
	"errors"
	"fmt"

	"ember/kernel/debug"
	"ember/kernel/list"
)

// Thread priorities.
const (
	PriMin     = 0  // lowest priority
	PriDefault = 31 // default priority
	PriMax     = 63 // highest priority
)

// TimeSlice is the number of timer ticks a thread runs before it is
// preempted.
const TimeSlice = 4

// nameMax is the longest thread name kept.
const nameMax = 15

// Random value for Thread.magic. Used to detect stack overflow.
const threadMagic = 0xcd6abf4b

// TID identifies a thread.
type TID int32

// TIDError is returned by Create on failure.
const TIDError TID = -1

// ErrNoMemory is returned by Create when no control block is free.
var ErrNoMemory = errors.New("threads: out of control blocks")

// Status is a thread's life cycle state.
type Status uint8

const (
	Running Status = iota // running thread
	Ready                 // not running but ready to run
	Blocked               // waiting for an event to trigger
	Dying                 // about to be destroyed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Dying:
		return "dying"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Func is the body of a kernel thread.
type Func func(aux any)

// AddressSpace is a user address space attached to a thread. The scheduler
// activates it whenever the thread is switched to.
type AddressSpace interface {
	Activate()
}

// Thread is a kernel thread control block.
//
// elem is shared: a thread is on at most one of the ready queue, a
// semaphore's wait queue and the sleep queue at a time. A ready thread is
// on the ready queue, a blocked one on a wait or sleep queue (or none).
type Thread struct {
	// Owned by the scheduler.
	tid      TID
	status   Status
	name     string
	priority int

	elem    list.Elem[*Thread] // ready, wait or sleep queue
	allElem list.Elem[*Thread] // all threads list

	wakeTick int64 // tick to wake at, while sleeping

	space AddressSpace

	// Switch state, owned by the switch routine.
	resume chan struct{}
	fn     Func
	aux    any

	// Detects stack overflow.
	magic uint32
}

// TID returns t's identifier.
func (t *Thread) TID() TID { return t.tid }

// Name returns t's name.
func (t *Thread) Name() string { return t.name }

// Priority returns t's priority.
func (t *Thread) Priority() int { return t.priority }

// Status returns t's state.
func (t *Thread) Status() Status { return t.status }

func (t *Thread) isThread() bool {
	return t != nil && t.magic == threadMagic
}

// initThread does basic initialization of t as a blocked thread named name.
func initThread(t *Thread, name string, priority int) {
	debug.Assert(t != nil, "t != nil")
	debug.Assert(PriMin <= priority && priority <= PriMax, "PriMin <= priority && priority <= PriMax")

	if len(name) > nameMax {
		name = name[:nameMax]
	}
	*t = Thread{
		status:   Blocked,
		name:     name,
		priority: priority,
		resume:   make(chan struct{}, 1),
		magic:    threadMagic,
	}
	t.elem.Value = t
	t.allElem.Value = t
}

func higherPriority(a, b *list.Elem[*Thread], _ any) bool {
	return a.Value.priority > b.Value.priority
}
