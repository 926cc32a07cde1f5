package threads

import "runtime"

// The processor is a baton passed between goroutines. Every thread owns a
// resume channel; a thread runs kernel code only after receiving from it,
// and gives the processor away by sending to the next thread's channel.
// Everything the outgoing thread wrote happens before the incoming thread
// resumes.

// launch prepares t's first run: its goroutine waits for the processor and
// then enters kernelThread with interrupts off.
func (s *Scheduler) launch(t *Thread) {
	resume := t.resume
	go func() {
		<-resume
		s.kernelThread(t)
	}()
}

// switchThreads hands the processor from cur to next, which must differ.
// It returns when cur is switched back to. A dying cur never returns: its
// goroutine ends once the processor has been handed over, and from then on
// its control block may be freed and reused.
func (s *Scheduler) switchThreads(cur, next *Thread) {
	dying := cur.status == Dying
	wait := cur.resume

	next.resume <- struct{}{}

	if dying {
		runtime.Goexit()
	}
	<-wait
}
