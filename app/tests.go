package app

import (
	"fmt"
	"sort"

	"ember/kernel/threads"
)

// kernelTest is one run of a built-in test. Messages are prefixed with the
// test name; the first failure is kept and returned.
type kernelTest struct {
	k    *Kernel
	name string
	err  error
}

func (t *kernelTest) msg(format string, args ...any) {
	t.k.Console.Printf("(%s) %s\n", t.name, fmt.Sprintf(format, args...))
}

func (t *kernelTest) fail(format string, args ...any) {
	m := fmt.Sprintf(format, args...)
	t.msg("FAIL: %s", m)
	if t.err == nil {
		t.err = fmt.Errorf("%s: %s", t.name, m)
	}
}

func (t *kernelTest) pass() { t.msg("PASS") }

var kernelTests = map[string]func(t *kernelTest){
	"alarm-single":       func(t *kernelTest) { testSleep(t, 5, 1) },
	"alarm-multiple":     func(t *kernelTest) { testSleep(t, 5, 7) },
	"alarm-simultaneous": testAlarmSimultaneous,
	"alarm-zero":         testAlarmZero,
	"alarm-negative":     testAlarmNegative,
	"priority-change":    testPriorityChange,
	"priority-fifo":      testPriorityFIFO,
	"priority-preempt":   testPriorityPreempt,
	"sema-self":          testSemaSelf,
	"cond-broadcast":     testCondBroadcast,
}

func testNames() []string {
	names := make([]string, 0, len(kernelTests))
	for name := range kernelTests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runTest(k *Kernel, name string) error {
	fn, ok := kernelTests[name]
	if !ok {
		return fmt.Errorf("no test named %q", name)
	}
	t := &kernelTest{k: k, name: name}
	t.msg("begin")
	fn(t)
	t.msg("end")
	return t.err
}

// create starts a thread or fails the test.
func (t *kernelTest) create(name string, priority int, fn threads.Func, aux any) {
	if _, err := t.k.Threads.Create(name, priority, fn, aux); err != nil {
		t.fail("%v", err)
	}
}

type sleepTest struct {
	start      int64
	iterations int

	lock   *threads.Lock
	output []int
}

type sleepThread struct {
	test       *sleepTest
	id         int
	duration   int64
	iterations int
}

// testSleep starts threadCnt threads that each sleep iterations times, for
// a fixed duration that differs per thread, and checks the order in which
// they wake up.
func testSleep(t *kernelTest, threadCnt, iterations int) {
	tm, s := t.k.Timer, t.k.Threads

	t.msg("Creating %d threads to sleep %d times each.", threadCnt, iterations)
	t.msg("Thread 0 sleeps 10 ticks each time,")
	t.msg("thread 1 sleeps 20 ticks each time, and so on.")
	t.msg("If successful, product of iteration count and")
	t.msg("sleep duration will appear in nondescending order.")

	test := &sleepTest{
		start:      tm.Ticks() + 100,
		iterations: iterations,
		lock:       s.NewLock(),
	}

	sleepers := make([]*sleepThread, threadCnt)
	for i := range sleepers {
		st := &sleepThread{test: test, id: i, duration: int64(i+1) * 10}
		sleepers[i] = st
		t.create(fmt.Sprintf("thread %d", i), threads.PriDefault, func(aux any) {
			st := aux.(*sleepThread)
			for i := 1; i <= st.test.iterations; i++ {
				until := st.test.start + int64(i)*st.duration
				tm.Sleep(until - tm.Ticks())

				st.test.lock.Acquire()
				st.test.output = append(st.test.output, st.id)
				st.test.lock.Release()
			}
		}, st)
	}

	// Wait long enough for all the threads to finish.
	tm.Sleep(100 + int64(threadCnt*iterations)*10 + 100)

	// Acquire the output lock in case some rogue thread is still running.
	test.lock.Acquire()
	product := int64(0)
	for _, id := range test.output {
		if id < 0 || id >= threadCnt {
			t.fail("bad thread id %d in output", id)
			continue
		}
		st := sleepers[id]
		st.iterations++
		p := int64(st.iterations) * st.duration
		t.msg("thread %d: duration=%d, iteration=%d, product=%d", st.id, st.duration, st.iterations, p)
		if p >= product {
			product = p
		} else {
			t.fail("thread %d woke up out of order (%d > %d)!", st.id, product, p)
		}
	}
	for _, st := range sleepers {
		if st.iterations != iterations {
			t.fail("thread %d woke up %d times instead of %d", st.id, st.iterations, iterations)
		}
	}
	test.lock.Release()
}

// testAlarmSimultaneous puts three threads to sleep until the same ticks
// and reports how far apart they woke up.
func testAlarmSimultaneous(t *kernelTest) {
	const (
		threadCnt  = 3
		iterations = 5
	)
	tm, s := t.k.Timer, t.k.Threads

	t.msg("Creating %d threads to sleep %d times each.", threadCnt, iterations)
	t.msg("Each thread sleeps 10 ticks each time.")
	t.msg("Within an iteration, all threads should wake up on the same tick.")

	start := tm.Ticks() + 100
	lock := s.NewLock()
	var woke []int64

	for i := 0; i < threadCnt; i++ {
		t.create(fmt.Sprintf("thread %d", i), threads.PriDefault, func(any) {
			for i := int64(1); i <= iterations; i++ {
				until := start + i*10
				tm.Sleep(until - tm.Ticks())

				lock.Acquire()
				woke = append(woke, tm.Ticks())
				lock.Release()
			}
		}, nil)
	}

	tm.Sleep(100 + iterations*10 + 100)

	lock.Acquire()
	defer lock.Release()
	if len(woke) != threadCnt*iterations {
		t.fail("%d wakeups instead of %d", len(woke), threadCnt*iterations)
		return
	}
	for i, w := range woke {
		iter := int64(i/threadCnt) + 1
		if w < start+iter*10 {
			t.fail("iteration %d, thread %d: woke up at tick %d, before %d", iter-1, i%threadCnt, w, start+iter*10)
		}
		if i%threadCnt == 0 {
			t.msg("iteration %d, thread %d: woke up after %d ticks", iter-1, i%threadCnt, w-start-(iter-1)*10)
		} else {
			t.msg("iteration %d, thread %d: woke up %d ticks later", iter-1, i%threadCnt, w-woke[i-1])
		}
	}
}

func testAlarmZero(t *kernelTest) {
	t.k.Timer.Sleep(0)
	t.pass()
}

func testAlarmNegative(t *kernelTest) {
	t.k.Timer.Sleep(-100)
	t.pass()
}

// testPriorityChange checks that a thread lowering its priority below that
// of a ready thread yields at once.
func testPriorityChange(t *kernelTest) {
	s := t.k.Threads
	var trace []string

	t.msg("Creating a high-priority thread 2.")
	t.create("thread 2", threads.PriDefault+1, func(any) {
		t.msg("Thread 2 now lowering priority.")
		trace = append(trace, "lowering")
		s.SetPriority(threads.PriDefault - 1)
		t.msg("Thread 2 exiting.")
		trace = append(trace, "exiting")
	}, nil)
	t.msg("Thread 2 should have just lowered its priority.")
	trace = append(trace, "main")
	s.SetPriority(threads.PriDefault - 2)
	t.msg("Thread 2 should have just exited.")
	s.SetPriority(threads.PriDefault)

	want := []string{"lowering", "main", "exiting"}
	if fmt.Sprint(trace) != fmt.Sprint(want) {
		t.fail("execution order %v, want %v", trace, want)
	}
}

// testPriorityFIFO checks that threads of equal priority are scheduled
// round robin: every iteration sees the same order.
func testPriorityFIFO(t *kernelTest) {
	const (
		threadCnt = 16
		iterCnt   = 16
	)
	s := t.k.Threads

	t.msg("%d threads will iterate %d times in the same order each time.", threadCnt, iterCnt)
	t.msg("If the order varies then there is a bug.")

	s.SetPriority(threads.PriDefault + 2)

	lock := s.NewLock()
	var output []int
	for i := 0; i < threadCnt; i++ {
		t.create(fmt.Sprintf("%d", i), threads.PriDefault+1, func(aux any) {
			id := aux.(int)
			for j := 0; j < iterCnt; j++ {
				lock.Acquire()
				output = append(output, id)
				lock.Release()
				s.Yield()
			}
		}, i)
	}

	s.SetPriority(threads.PriDefault)
	// All the threads have run to completion by now.

	lock.Acquire()
	defer lock.Release()
	if len(output) != threadCnt*iterCnt {
		t.fail("%d entries instead of %d", len(output), threadCnt*iterCnt)
		return
	}
	first := output[:threadCnt]
	for i := 0; i < iterCnt; i++ {
		row := output[i*threadCnt : (i+1)*threadCnt]
		t.msg("iteration: %v", row)
		if fmt.Sprint(row) != fmt.Sprint(first) {
			t.fail("order in iteration %d differs from iteration 0", i)
		}
	}
}

// testPriorityPreempt checks that a new thread of higher priority runs to
// completion before its creator continues.
func testPriorityPreempt(t *kernelTest) {
	s := t.k.Threads
	done := false

	t.create("high-priority", threads.PriDefault+1, func(any) {
		for i := 0; i < 5; i++ {
			t.msg("Thread %s iteration %d", s.Name(), i)
			s.Yield()
		}
		t.msg("Thread %s done!", s.Name())
		done = true
	}, nil)
	t.msg("The high-priority thread should have already completed.")
	if !done {
		t.fail("high-priority thread did not preempt its creator")
	}
}

// testSemaSelf makes two threads ping-pong control through a pair of
// semaphores.
func testSemaSelf(t *kernelTest) {
	s := t.k.Threads
	sema := [2]*threads.Semaphore{s.NewSemaphore(0), s.NewSemaphore(0)}

	t.msg("Testing semaphores...")
	rounds := 0
	t.create("sema-test", threads.PriDefault, func(any) {
		for i := 0; i < 10; i++ {
			sema[0].Down()
			rounds++
			sema[1].Up()
		}
	}, nil)
	for i := 0; i < 10; i++ {
		sema[0].Up()
		sema[1].Down()
	}
	if rounds != 10 {
		t.fail("%d rounds instead of 10", rounds)
		return
	}
	t.msg("done.")
}

// testCondBroadcast parks several threads on a condition variable and
// checks that one broadcast wakes them all.
func testCondBroadcast(t *kernelTest) {
	const waiters = 10
	s := t.k.Threads

	lock := s.NewLock()
	cond := s.NewCond()
	done := s.NewSemaphore(0)
	ready := false
	woke := 0

	for i := 0; i < waiters; i++ {
		t.create(fmt.Sprintf("waiter %d", i), threads.PriDefault+1, func(aux any) {
			lock.Acquire()
			for !ready {
				cond.Wait(lock)
			}
			woke++
			t.msg("Thread %d woke up.", aux.(int))
			lock.Release()
			done.Up()
		}, i)
	}
	t.msg("%d threads waiting.", cond.Waiters())

	lock.Acquire()
	ready = true
	cond.Broadcast(lock)
	lock.Release()

	for i := 0; i < waiters; i++ {
		done.Down()
	}
	if woke != waiters {
		t.fail("%d threads woke up instead of %d", woke, waiters)
	}
}
