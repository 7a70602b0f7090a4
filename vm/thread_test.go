package vm

import (
	"testing"
	"time"
)

func TestThreadLocals(t *testing.T) {
	rt := newTestRuntime(t)
	x := rt.Symbols.Intern("x")
	parent := rt.NewThread(nil)
	child := rt.NewThread(parent)

	if _, ok := child.LoadLocal(x); ok {
		t.Fatal("unbound symbol has a local value")
	}
	if old := parent.SaveLocal(x, Int(1)); !old.IsUndefined() {
		t.Errorf("first save returned %s", old)
	}
	if v, ok := child.LoadLocal(x); !ok || !v.SameAs(Int(1).Ref) {
		t.Errorf("child sees %s, %v; want the parent's 1", v, ok)
	}

	if old := child.SaveLocal(x, rt.str("mine")); !old.IsUndefined() {
		t.Errorf("child save returned %s", old)
	}
	v, _ := child.LoadLocal(x)
	assertFullForm(t, v.Ref, `"mine"`)
	v.Release()

	old := child.SaveLocal(x, Undefined())
	assertFullForm(t, old.Ref, `"mine"`)
	old.Release()
	if v, _ := child.LoadLocal(x); !v.SameAs(Int(1).Ref) {
		t.Errorf("after removing the child binding got %s, want 1", v)
	}
	if owner := child.localOwner(x); owner != parent {
		t.Error("localOwner did not find the parent")
	}

	x.SetOwnValue(Int(7))
	if v := rt.SymbolValue(child, x); !v.SameAs(Int(1).Ref) {
		t.Errorf("local binding does not shadow the global value, got %s", v)
	}
	parent.SaveLocal(x, Undefined()).Release()
	if v := rt.SymbolValue(child, x); !v.SameAs(Int(7).Ref) {
		t.Errorf("SymbolValue = %s, want the global 7", v)
	}
	x.SetOwnValue(Undefined())
}

func TestFinishReleasesLocals(t *testing.T) {
	rt := newTestRuntime(t)
	base := rt.heap.Live()
	th := rt.NewThread(nil)
	th.SaveLocal(rt.Symbols.Intern("x"), rt.call("f", rt.str("big")))
	th.Finish()
	if got := rt.heap.Live(); got != base {
		t.Errorf("live = %d after Finish, want %d", got, base)
	}
	if th.State() != ThreadTerminated {
		t.Errorf("state = %s, want Terminated", th.State())
	}
}

func TestFinishMovesExceptionToParent(t *testing.T) {
	rt := newTestRuntime(t)
	parent := rt.NewThread(nil)
	child := rt.NewThread(parent)

	rt.Abort.Throw(child, rt.str("oops"))
	child.Finish()

	ex := rt.Abort.Catch(parent)
	assertFullForm(t, ex.Ref, `"oops"`)
	ex.Release()
}

func TestFinishReportsLostExceptions(t *testing.T) {
	rt := newTestRuntime(t)

	top := rt.NewThread(nil)
	rt.Abort.Throw(top, Int(1))
	top.Finish()

	parent := rt.NewThread(nil)
	child := rt.NewThread(parent)
	parent.Finish()
	rt.Abort.Throw(child, Int(2))
	child.Finish()

	// an abort is absorbed silently
	quiet := rt.NewThread(nil)
	rt.Abort.Throw(quiet, AbortException())
	quiet.Finish()

	msgs := rt.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want two", msgs)
	}
	if msgs[0].Name() != "Throw::nocatch" || msgs[1].Name() != "Thread::lstl" {
		t.Errorf("messages = %v, want Throw::nocatch then Thread::lstl", msgs)
	}
	if rt.Abort.Reasons() != 0 {
		t.Errorf("reasons = %d, want 0", rt.Abort.Reasons())
	}
}

func TestSpawnAndWait(t *testing.T) {
	rt := newTestRuntime(t)
	parent := rt.NewThread(nil)

	h := rt.Spawn(parent, func(th *Thread) Value {
		if th.Parent() != parent {
			t.Error("spawned thread has the wrong parent")
		}
		return Int(42)
	})
	if got := h.Wait(); !got.SameAs(Int(42).Ref) {
		t.Errorf("Wait = %s, want 42", got)
	}
	if got := h.Wait(); !got.IsNull() {
		t.Errorf("second Wait = %s, want Null", got)
	}
	if h.Thread.State() != ThreadTerminated {
		t.Error("spawned thread not terminated")
	}
}

func TestStackTraceOfOtherThread(t *testing.T) {
	rt := newTestRuntime(t)
	self := rt.NewThread(nil)
	f := rt.Symbols.Intern("f")
	g := rt.Symbols.Intern("g")

	entered := make(chan struct{})
	release := make(chan struct{})
	h := rt.Spawn(nil, func(th *Thread) Value {
		th.enter(f)
		th.enter(g)
		close(entered)
		<-release
		th.leave()
		th.leave()
		return Null
	})

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("thread did not start")
	}
	frames := rt.StackTrace(self, h.Thread)
	close(release)
	h.Wait()

	if len(frames) != 2 || frames[0].Head != g || frames[1].Head != f {
		t.Errorf("frames = %+v, want g then f", frames)
	}
	if rt.Abort.Reasons() != 0 {
		t.Errorf("reasons = %d after StackTrace, want 0", rt.Abort.Reasons())
	}
}
