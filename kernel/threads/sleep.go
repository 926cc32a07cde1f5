package threads

import (
	"math"

	"ember/kernel/debug"
	"ember/kernel/list"
)

// Sleep blocks the running thread until Awake is called with a tick of at
// least until. The idle thread never sleeps.
func (s *Scheduler) Sleep(until int64) {
	debug.Assert(!s.ic.Context(), "!intr.Context()")

	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	t := s.Current()
	if t == s.idle {
		return
	}
	t.wakeTick = until
	if until < s.nextWake {
		s.nextWake = until
	}
	s.sleeping.PushBack(&t.elem)
	s.Block()
}

// Awake unblocks every sleeping thread whose wake tick is at most now. It
// is called once per timer tick, in interrupt context; a tick with nobody
// due only costs a comparison.
//
// An empty sleep queue is the common case, not an error.
func (s *Scheduler) Awake(now int64) {
	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	if now < s.nextWake {
		return
	}

	next := int64(math.MaxInt64)
	for e := s.sleeping.Begin(); e != s.sleeping.End(); {
		t := e.Value
		if t.wakeTick <= now {
			e = list.Remove(e)
			s.Unblock(t)
			continue
		}
		if t.wakeTick < next {
			next = t.wakeTick
		}
		e = e.Next()
	}
	s.nextWake = next
}

// Sleepers returns the number of threads on the sleep queue.
func (s *Scheduler) Sleepers() int {
	old := s.ic.Disable()
	defer s.ic.SetLevel(old)
	return s.sleeping.Len()
}
