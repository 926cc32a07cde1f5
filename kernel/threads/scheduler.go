package threads

import (
	"fmt"
	"io"
	"math"

	"ember/kernel/debug"
	"ember/kernel/intr"
	"ember/kernel/list"
	"ember/kernel/palloc"
)

// Stats counts timer ticks by what the processor was doing.
type Stats struct {
	IdleTicks   int64 // spent in the idle thread
	KernelTicks int64 // spent in kernel threads
	UserTicks   int64 // spent in threads with an address space
}

func (st Stats) String() string {
	return fmt.Sprintf("Thread: %d idle ticks, %d kernel ticks, %d user ticks",
		st.IdleTicks, st.KernelTicks, st.UserTicks)
}

// Scheduler owns every thread of one processor.
//
// All methods are called by the running thread; those documented as safe
// for interrupt context may also be called from an external handler.
type Scheduler struct {
	_ [0]func() // prevent accidental copying.

	ic   *intr.Controller
	pool *palloc.Pool[Thread]

	// Threads in Ready state, highest priority first, FIFO among equals.
	ready list.List[*Thread]
	// Threads waiting in Sleep, unordered.
	sleeping list.List[*Thread]
	// Dying threads whose control blocks are freed by the next switch.
	destruction list.List[*Thread]
	// Every live thread.
	all list.List[*Thread]

	cur     *Thread
	idle    *Thread
	initial *Thread

	tidLock Lock
	nextTID TID

	sliceTicks int   // ticks since the last switch
	nextWake   int64 // earliest wake tick on the sleep queue
	stats      Stats
}

// New returns a scheduler for the processor behind ic that can hold up to
// maxThreads threads besides the initial one.
func New(ic *intr.Controller, maxThreads int) *Scheduler {
	return &Scheduler{
		ic:       ic,
		pool:     palloc.New[Thread](maxThreads),
		nextTID:  1,
		nextWake: math.MaxInt64,
	}
}

// Init turns the code that is currently running into the initial thread,
// named "main". It must be called with interrupts off, before any other
// method. The initial thread's control block is never freed.
func (s *Scheduler) Init() {
	debug.Assert(s.ic.Level() == intr.Off, "intr.Level() == intr.Off")

	s.ready.Init()
	s.sleeping.Init()
	s.destruction.Init()
	s.all.Init()

	s.initial = new(Thread)
	initThread(s.initial, "main", PriDefault)
	s.initial.status = Running
	s.cur = s.initial
	s.all.PushBack(&s.initial.allElem)

	s.tidLock.Init(s)
	s.initial.tid = s.allocateTID()

	s.ic.SetYield(s.Yield)
}

// Start creates the idle thread and starts preemptive scheduling by
// enabling interrupts.
func (s *Scheduler) Start() {
	idleStarted := s.NewSemaphore(0)
	if _, err := s.Create("idle", PriMin, s.idleLoop, idleStarted); err != nil {
		debug.Panicf("cannot create idle thread: %v", err)
	}

	s.ic.Enable()

	// Wait for the idle thread to record itself.
	idleStarted.Down()
}

// idleLoop runs when no other thread is ready. It is scheduled once by
// Start and afterwards only when the ready queue is empty, never from it.
func (s *Scheduler) idleLoop(aux any) {
	idleStarted := aux.(*Semaphore)
	s.idle = s.Current()
	idleStarted.Up()

	for {
		// Let someone else run.
		s.ic.Disable()
		s.Block()

		// Re-enable interrupts and wait for the next one, atomically.
		s.ic.Halt()
	}
}

// Create starts a new kernel thread named name with the given priority,
// running fn(aux), and returns its identifier.
//
// After Start the new thread may run, and even exit, before Create returns.
// If it outranks the caller, the caller yields to it immediately.
func (s *Scheduler) Create(name string, priority int, fn Func, aux any) (TID, error) {
	debug.Assert(fn != nil, "fn != nil")

	t, err := s.pool.Get(palloc.Zero)
	if err != nil {
		return TIDError, fmt.Errorf("create %q: %w", name, ErrNoMemory)
	}

	initThread(t, name, priority)
	tid := s.allocateTID()
	t.tid = tid
	t.fn, t.aux = fn, aux

	old := s.ic.Disable()
	s.all.PushBack(&t.allElem)
	s.ic.SetLevel(old)

	s.launch(t)
	s.Unblock(t)

	if s.Current().priority < priority {
		s.Yield()
	}
	// t may already have exited and been reused by another Create.
	return tid, nil
}

// kernelThread is where every new thread starts, with interrupts off.
func (s *Scheduler) kernelThread(t *Thread) {
	debug.Assert(t.fn != nil, "t.fn != nil")

	s.ic.Enable()
	t.fn(t.aux)
	s.Exit()
}

// Block puts the running thread to sleep until Unblock. It must be called
// with interrupts off, outside interrupt context. The caller is responsible
// for having put the thread on some queue first.
func (s *Scheduler) Block() {
	debug.Assert(!s.ic.Context(), "!intr.Context()")
	debug.Assert(s.ic.Level() == intr.Off, "intr.Level() == intr.Off")

	s.doSchedule(Blocked)
}

// Unblock makes the blocked thread t ready to run. It does not preempt the
// running thread: a caller that disabled interrupts may rely on unblocking
// a thread and updating other data atomically. Safe in interrupt context.
func (s *Scheduler) Unblock(t *Thread) {
	debug.Assert(t.isThread(), "t.isThread()")

	old := s.ic.Disable()
	defer s.ic.SetLevel(old)

	debug.Assert(t.status == Blocked, "t.status == Blocked")
	s.ready.InsertOrdered(&t.elem, higherPriority, nil)
	t.status = Ready
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	t := s.cur

	// If either assertion fires, the thread's control block was corrupted.
	debug.Assert(t.isThread(), "t.isThread()")
	debug.Assert(t.status == Running, "t.status == Running")

	return t
}

// Name returns the running thread's name.
func (s *Scheduler) Name() string { return s.Current().name }

// TID returns the running thread's identifier.
func (s *Scheduler) TID() TID { return s.Current().tid }

// Exit deschedules and destroys the running thread. It never returns.
//
// Deferred calls pending in the exiting thread run after it has left the
// processor and must not touch kernel state.
func (s *Scheduler) Exit() {
	debug.Assert(!s.ic.Context(), "!intr.Context()")

	s.ic.Disable()
	list.Remove(&s.cur.allElem)
	s.doSchedule(Dying)
	debug.NotReached()
}

// Yield gives up the processor. The running thread stays ready and may be
// picked again right away.
func (s *Scheduler) Yield() {
	cur := s.Current()
	debug.Assert(!s.ic.Context(), "!intr.Context()")

	old := s.ic.Disable()
	if cur != s.idle {
		s.ready.InsertOrdered(&cur.elem, higherPriority, nil)
	}
	s.doSchedule(Ready)
	s.ic.SetLevel(old)
}

// Priority returns the running thread's priority.
func (s *Scheduler) Priority() int { return s.Current().priority }

// SetPriority sets the running thread's priority and yields if a ready
// thread now outranks it.
func (s *Scheduler) SetPriority(priority int) {
	debug.Assert(PriMin <= priority && priority <= PriMax, "PriMin <= priority && priority <= PriMax")

	s.Current().priority = priority
	s.CheckPreempt()
}

// CheckPreempt yields if the front of the ready queue outranks the running
// thread. In interrupt context the yield is deferred to handler return.
func (s *Scheduler) CheckPreempt() {
	old := s.ic.Disable()
	outranked := !s.ready.Empty() && s.ready.Front().Value.priority > s.Current().priority
	s.ic.SetLevel(old)

	if !outranked {
		return
	}
	if s.ic.Context() {
		s.ic.YieldOnReturn()
	} else {
		s.Yield()
	}
}

// SetAddressSpace attaches as to the running thread and activates it.
func (s *Scheduler) SetAddressSpace(as AddressSpace) {
	t := s.Current()
	t.space = as
	if as != nil {
		as.Activate()
	}
}

// Tick charges the current timer tick to the running thread and asks for
// preemption once its time slice is used up. It runs in interrupt context.
func (s *Scheduler) Tick() {
	t := s.Current()

	switch {
	case t == s.idle:
		s.stats.IdleTicks++
	case t.space != nil:
		s.stats.UserTicks++
	default:
		s.stats.KernelTicks++
	}

	s.sliceTicks++
	if s.sliceTicks >= TimeSlice {
		s.ic.YieldOnReturn()
	}
}

// Stats returns the tick counters.
func (s *Scheduler) Stats() Stats {
	old := s.ic.Disable()
	defer s.ic.SetLevel(old)
	return s.stats
}

// PrintStats writes the tick counters to w.
func (s *Scheduler) PrintStats(w io.Writer) {
	fmt.Fprintln(w, s.Stats())
}

// Foreach calls fn for every live thread. It must be called with
// interrupts off, and fn must not block or create or destroy threads.
func (s *Scheduler) Foreach(fn func(t *Thread)) {
	debug.Assert(s.ic.Level() == intr.Off, "intr.Level() == intr.Off")

	for e := s.all.Begin(); e != s.all.End(); e = e.Next() {
		fn(e.Value)
	}
}

// Dump writes one line per live thread to w.
func (s *Scheduler) Dump(w io.Writer) {
	var lines []string
	old := s.ic.Disable()
	s.Foreach(func(t *Thread) {
		lines = append(lines, fmt.Sprintf("%4d %-15s %-7s pri %2d", t.tid, t.name, t.status, t.priority))
	})
	s.ic.SetLevel(old)

	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// allocateTID returns the identifier for a new thread.
func (s *Scheduler) allocateTID() TID {
	s.tidLock.Acquire()
	tid := s.nextTID
	s.nextTID++
	s.tidLock.Release()
	return tid
}

// nextThreadToRun picks the next thread to run: the front of the ready
// queue, or the idle thread if the queue is empty.
func (s *Scheduler) nextThreadToRun() *Thread {
	if s.ready.Empty() {
		return s.idle
	}
	return s.ready.PopFront().Value
}

// doSchedule frees the control blocks of threads that died before the last
// switch, sets the running thread's status and switches. Interrupts must
// be off.
func (s *Scheduler) doSchedule(status Status) {
	debug.Assert(s.ic.Level() == intr.Off, "intr.Level() == intr.Off")
	debug.Assert(s.cur.status == Running, "s.cur.status == Running")

	for !s.destruction.Empty() {
		victim := s.destruction.PopFront().Value
		victim.magic = 0
		s.pool.Free(victim)
	}
	s.cur.status = status
	s.schedule()
}

func (s *Scheduler) schedule() {
	cur := s.cur
	next := s.nextThreadToRun()

	debug.Assert(s.ic.Level() == intr.Off, "intr.Level() == intr.Off")
	debug.Assert(cur.status != Running, "cur.status != Running")
	debug.Assert(next.isThread(), "next.isThread()")

	// Mark it running and start a new time slice.
	next.status = Running
	s.sliceTicks = 0

	// Activate the new address space.
	if next.space != nil {
		next.space.Activate()
	}

	if cur != next {
		// A dying thread cannot free itself: its goroutine is still the one
		// running. Queue it; the next doSchedule frees it.
		if cur.status == Dying && cur != s.initial {
			debug.Assert(cur != next, "cur != next")
			s.destruction.PushBack(&cur.elem)
		}

		s.cur = next
		s.switchThreads(cur, next)
	}
}
