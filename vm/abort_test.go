package vm

import (
	"sync"
	"testing"
	"time"
)

func TestAbortAndContinue(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	th := rt.NewThread(nil)
	other := rt.NewThread(nil)

	if a.Aborting(th) {
		t.Fatal("fresh thread is aborting")
	}
	a.AbortPlease()
	a.AbortPlease()
	if !a.Aborting(th) || !a.Aborting(other) {
		t.Fatal("threads do not observe the abort")
	}
	if ex := a.Catch(th); !ex.IsAbort() {
		t.Errorf("caught %s, want the abort sentinel", ex)
	}
	// the flag is still set until ContinueAfterAbort
	if !a.Aborting(th) {
		t.Error("abort lost after catching the sentinel")
	}

	if !a.ContinueAfterAbort(th) {
		t.Error("ContinueAfterAbort reported no abort")
	}
	if a.Aborting(th) {
		t.Error("thread still aborting after ContinueAfterAbort")
	}
	a.ContinueAfterAbort(other)
	if a.Reasons() != 0 {
		t.Errorf("reasons = %d after everything was handled, want 0", a.Reasons())
	}
	if a.ContinueAfterAbort(th) {
		t.Error("second ContinueAfterAbort reported an abort")
	}
}

func TestThrowAndCatch(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	th := rt.NewThread(nil)

	a.Throw(th, Int(1))
	a.Throw(th, Int(2)) // refused, slot is taken
	if !a.PeekException(th) || !a.Aborting(th) {
		t.Fatal("pending exception not visible")
	}
	if got := a.Catch(th); !got.SameAs(Int(1).Ref) {
		t.Errorf("caught %s, want 1", got)
	}
	if a.Aborting(th) || a.Reasons() != 0 {
		t.Errorf("aborting after catch (reasons %d)", a.Reasons())
	}
	if got := a.Catch(th); !got.IsUndefined() {
		t.Errorf("empty slot gave %s", got)
	}

	a.Throw(th, Int(3))
	if old := a.ThrowReplacing(th, Int(4)); !old.SameAs(Int(3).Ref) {
		t.Errorf("ThrowReplacing returned %s, want 3", old)
	}
	if got := a.Catch(th); !got.SameAs(Int(4).Ref) {
		t.Errorf("caught %s, want 4", got)
	}
}

func TestAncestorExceptionStopsChildren(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	parent := rt.NewThread(nil)
	child := rt.NewThread(parent)
	grandchild := rt.NewThread(child)

	a.Throw(parent, rt.str("boom"))
	if !a.Aborting(grandchild) {
		t.Error("grandchild ignores its ancestor's exception")
	}
	if a.PeekException(grandchild) {
		t.Error("ancestor exception was copied into the grandchild")
	}
	a.Catch(parent).Release()
	if a.Aborting(grandchild) {
		t.Error("grandchild still aborting after the ancestor caught")
	}
}

func TestIgnoreOlderAborts(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	th := rt.NewThread(nil)

	a.AbortPlease()
	a.ContinueAfterAbort(th)
	child := rt.NewThread(th)
	if a.Aborting(child) {
		t.Error("child of a continued thread sees the old abort")
	}
	a.AbortPlease()
	if !a.Aborting(child) {
		t.Error("child misses a new abort")
	}
	a.ContinueAfterAbort(child)
	a.ContinueAfterAbort(th)
}

func TestSuspendAllBlocksOtherThreads(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	boss := rt.NewThread(nil)
	worker := rt.NewThread(nil)

	a.SuspendAll(boss)
	a.SuspendAll(boss) // nests

	passed := make(chan struct{})
	go func() {
		a.Aborting(worker)
		close(passed)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for worker.State() != ThreadBlocked {
		if time.Now().After(deadline) {
			t.Fatal("worker never blocked")
		}
		time.Sleep(time.Millisecond)
	}
	if a.Aborting(boss) {
		t.Error("suspending thread reports aborting")
	}

	a.ResumeAll()
	select {
	case <-passed:
		t.Fatal("worker resumed before the outer ResumeAll")
	case <-time.After(20 * time.Millisecond):
	}
	a.ResumeAll()
	select {
	case <-passed:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not resume")
	}
	if a.Reasons() != 0 {
		t.Errorf("reasons = %d after resume, want 0", a.Reasons())
	}
}

func TestConcurrentThrowsKeepReasonsBalanced(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.Abort
	threads := make([]*Thread, 8)
	for i := range threads {
		threads[i] = rt.NewThread(nil)
	}

	var wg sync.WaitGroup
	for i, th := range threads {
		wg.Add(1)
		go func(i int, th *Thread) {
			defer wg.Done()
			for n := 0; n < 500; n++ {
				a.Throw(th, Int(int32(n)))
				a.Catch(th).Release()
			}
		}(i, th)
	}
	wg.Wait()
	if a.Reasons() != 0 {
		t.Errorf("reasons = %d, want 0", a.Reasons())
	}
}
