package vm

import (
	"sync"
)

// ---------------------------------------------------------------------------
// Spawned threads
// ---------------------------------------------------------------------------

// ThreadHandle tracks a thread running on its own goroutine.
type ThreadHandle struct {
	Thread *Thread
	done   chan struct{}
	mu     sync.Mutex
	result Value
}

// Spawn runs fn on a new goroutine with a fresh child thread of parent.
// When fn returns, the child is finished: an uncaught exception moves to
// parent. The result is collected with Wait.
func (rt *Runtime) Spawn(parent *Thread, fn func(th *Thread) Value) *ThreadHandle {
	th := rt.NewThread(parent)
	h := &ThreadHandle{Thread: th, done: make(chan struct{})}
	rt.threads.Add(1)
	go func() {
		defer rt.threads.Done()
		result := fn(th)
		th.Finish()
		h.markDone(result)
	}()
	return h
}

func (h *ThreadHandle) markDone(result Value) {
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

// Done is closed when the thread has finished.
func (h *ThreadHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the thread finishes and returns its result. The result
// is handed over once; later calls return Null.
func (h *ThreadHandle) Wait() Value {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.result
	h.result = Null
	return r
}

// StackTrace returns target's evaluation stack, innermost first. Other
// threads are suspended at their next checkpoint while the stack is read.
func (rt *Runtime) StackTrace(self, target *Thread) []Frame {
	if target != self {
		rt.Abort.SuspendAll(self)
		defer rt.Abort.ResumeAll()
	}
	return target.Frames()
}
