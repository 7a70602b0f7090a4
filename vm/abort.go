package vm

import (
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// ---------------------------------------------------------------------------
// AbortController: cooperative abort, suspend and exception signalling
// ---------------------------------------------------------------------------

// AbortController is the cancellation token shared by all threads of a
// runtime. Nothing is ever preempted: threads observe requests at the
// checkpoints where they call Aborting.
type AbortController struct {
	// reasons counts outstanding causes for Aborting to look closer: the
	// abort flag, an active suspend, and every non-empty exception slot.
	reasons  atomic.Int32
	aborting atomic.Bool
	timer    atomic.Int64

	excMu deadlock.Mutex

	suspendMu    sync.Mutex
	suspendCond  *sync.Cond
	suspending   atomic.Bool
	suspender    *Thread
	suspendDepth int
}

// NewAbortController creates a controller with no pending requests.
func NewAbortController() *AbortController {
	a := &AbortController{}
	a.suspendCond = sync.NewCond(&a.suspendMu)
	return a
}

// Reasons returns the number of outstanding abort reasons.
func (a *AbortController) Reasons() int32 { return a.reasons.Load() }

// IsAborting reports whether a global abort is in effect.
func (a *AbortController) IsAborting() bool { return a.aborting.Load() }

// AbortPlease requests that every thread abort. Repeated requests before
// ContinueAfterAbort have no further effect.
func (a *AbortController) AbortPlease() {
	if a.aborting.CompareAndSwap(false, true) {
		a.timer.Add(1)
		a.reasons.Add(1)
	}
	a.wake()
}

// ContinueAfterAbort clears the abort flag and th's pending exception. th
// then ignores abort requests and ancestor exceptions older than this call.
// It reports whether an abort was in effect.
func (a *AbortController) ContinueAfterAbort(th *Thread) bool {
	was := a.aborting.CompareAndSwap(true, false)
	if was {
		a.reasons.Add(-1)
	}
	if th != nil {
		a.Catch(th).Release()
		th.ignoreOlder.Store(a.timer.Load() + 1)
	}
	return was
}

// Aborting is the cooperative checkpoint. It blocks while another thread
// has suspended all threads. It returns true when th or an ancestor has a
// pending exception, or a global abort newer than th's watermark is in
// effect; in the latter case the abort sentinel is thrown into th's empty
// exception slot so the unwinding can be caught.
func (a *AbortController) Aborting(th *Thread) bool {
	if a.reasons.Load() == 0 {
		return false
	}
	if a.suspending.Load() {
		a.waitWhileSuspended(th)
	}
	if th == nil {
		return a.aborting.Load()
	}
	if th.pending.Load() {
		th.setState(ThreadAborting)
		return true
	}

	timer := a.timer.Load()
	if a.aborting.Load() && th.ignoreOlder.Load() <= timer {
		a.Throw(th, AbortException())
		th.setState(ThreadAborting)
		return true
	}
	for t := th.parent; t != nil && t.ignoreOlder.Load() <= timer; t = t.parent {
		if t.pending.Load() {
			th.setState(ThreadAborting)
			return true
		}
	}
	return false
}

// Throw stores ex in th's exception slot unless one is already pending,
// consuming ex.
func (a *AbortController) Throw(th *Thread, ex Value) {
	a.changeException(th, ex, false).Release()
}

// ThrowReplacing stores ex in th's exception slot, replacing any pending
// exception, and returns the replaced one (or Undefined).
func (a *AbortController) ThrowReplacing(th *Thread, ex Value) Value {
	return a.changeException(th, ex, true)
}

// Catch takes th's pending exception, leaving the slot empty. It returns
// Undefined when nothing was pending.
func (a *AbortController) Catch(th *Thread) Value {
	return a.changeException(th, Undefined(), true)
}

// changeException swaps ex into th's slot and returns whatever the caller
// now owns: the previous exception, or ex itself if it was refused.
func (a *AbortController) changeException(th *Thread, ex Value, preferNew bool) Value {
	if th == nil {
		return ex
	}
	a.excMu.Lock()
	defer a.excMu.Unlock()

	old := th.exception
	if old.IsUndefined() {
		if ex.IsUndefined() {
			return ex
		}
		a.reasons.Add(1)
		th.exception = ex
		th.pending.Store(true)
		a.wake()
		return old
	}
	if !preferNew {
		return ex
	}
	if ex.IsUndefined() {
		a.reasons.Add(-1)
		th.pending.Store(false)
		th.setState(ThreadRunning)
	}
	th.exception = ex
	return old
}

// PeekException reports whether th has a pending exception.
func (a *AbortController) PeekException(th *Thread) bool {
	return th.pending.Load()
}

// ---------------------------------------------------------------------------
// Suspend / resume
// ---------------------------------------------------------------------------

// SuspendAll makes every other thread block at its next checkpoint until
// ResumeAll. Calls by the suspending thread nest.
func (a *AbortController) SuspendAll(th *Thread) {
	a.suspendMu.Lock()
	defer a.suspendMu.Unlock()

	for a.suspending.Load() && a.suspender != th {
		a.suspendCond.Wait()
	}
	if a.suspendDepth == 0 {
		a.reasons.Add(1)
		a.suspender = th
		a.suspending.Store(true)
	}
	a.suspendDepth++
}

// ResumeAll undoes one SuspendAll.
func (a *AbortController) ResumeAll() {
	a.suspendMu.Lock()
	defer a.suspendMu.Unlock()

	if a.suspendDepth == 0 {
		return
	}
	a.suspendDepth--
	if a.suspendDepth == 0 {
		a.suspending.Store(false)
		a.suspender = nil
		a.reasons.Add(-1)
		a.suspendCond.Broadcast()
	}
}

func (a *AbortController) waitWhileSuspended(th *Thread) {
	a.suspendMu.Lock()
	defer a.suspendMu.Unlock()

	for a.suspending.Load() && (th == nil || a.suspender != th) {
		if th != nil {
			th.setState(ThreadBlocked)
		}
		a.suspendCond.Wait()
	}
	if th != nil {
		th.setState(ThreadRunning)
	}
}

// wake rouses blocked threads so they re-examine their state.
func (a *AbortController) wake() {
	a.suspendCond.Broadcast()
}
