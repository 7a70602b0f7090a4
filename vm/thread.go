package vm

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chazu/pmeval/hashtable"
)

// ---------------------------------------------------------------------------
// Thread: per-logical-thread evaluation state
// ---------------------------------------------------------------------------

// ThreadState is the scheduling state of a logical thread.
type ThreadState int32

const (
	ThreadRunning ThreadState = iota
	ThreadBlocked
	ThreadAborting
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "Running"
	case ThreadBlocked:
		return "Blocked"
	case ThreadAborting:
		return "Aborting"
	case ThreadTerminated:
		return "Terminated"
	}
	return "ThreadState(?)"
}

// Frame is one entry of a thread's evaluation stack.
type Frame struct {
	Head *Symbol // topmost symbol of the expression's head, or nil
}

type localEntry struct {
	sym   *Symbol
	value Value
}

type localStrategy struct{}

func (localStrategy) EntryHash(e localEntry) uint64              { return e.sym.hash }
func (localStrategy) EntriesEqual(a, b localEntry) bool          { return a.sym == b.sym }
func (localStrategy) KeyHash(s *Symbol) uint64                   { return s.hash }
func (localStrategy) EntryEqualsKey(e localEntry, s *Symbol) bool { return e.sym == s }

// Thread is the evaluation state of one logical thread. Only the goroutine
// running the thread touches depth and frames for writing; the exception
// slot and thread-local bindings may be read by other threads.
type Thread struct {
	ID     uuid.UUID
	rt     *Runtime
	parent *Thread

	depth          int
	reclimReported bool
	state          atomic.Int32

	framesMu sync.Mutex
	frames   []Frame

	// guarded by rt.Abort.excMu
	exception Value
	pending   atomic.Bool

	ignoreOlder atomic.Int64

	localsMu sync.RWMutex
	locals   *hashtable.Table[localEntry, *Symbol]
	nlocals  atomic.Int32
}

// NewThread creates a thread whose thread-local lookups and uncaught
// exceptions go to parent. parent may be nil for a top-level thread.
func (rt *Runtime) NewThread(parent *Thread) *Thread {
	th := &Thread{
		ID:        uuid.New(),
		rt:        rt,
		parent:    parent,
		exception: Undefined(),
	}
	if parent != nil {
		th.ignoreOlder.Store(parent.ignoreOlder.Load())
	}
	return th
}

// Parent returns the parent thread or nil.
func (th *Thread) Parent() *Thread { return th.parent }

// Depth returns the current evaluation depth.
func (th *Thread) Depth() int { return th.depth }

// State returns the scheduling state.
func (th *Thread) State() ThreadState { return ThreadState(th.state.Load()) }

func (th *Thread) setState(s ThreadState) {
	if ThreadState(th.state.Load()) != s {
		th.state.Store(int32(s))
	}
}

func (th *Thread) enter(head *Symbol) {
	th.depth++
	th.framesMu.Lock()
	th.frames = append(th.frames, Frame{Head: head})
	th.framesMu.Unlock()
}

func (th *Thread) leave() {
	th.framesMu.Lock()
	th.frames = th.frames[:len(th.frames)-1]
	th.framesMu.Unlock()
	th.depth--
	if th.depth == 0 {
		th.reclimReported = false
	}
}

// Frames returns the evaluation stack, innermost first.
func (th *Thread) Frames() []Frame {
	th.framesMu.Lock()
	defer th.framesMu.Unlock()
	out := make([]Frame, len(th.frames))
	for i, f := range th.frames {
		out[len(out)-1-i] = f
	}
	return out
}

// ---------------------------------------------------------------------------
// Thread-local bindings
// ---------------------------------------------------------------------------

// SaveLocal binds sym to v on this thread, consuming v, and returns the
// previous binding or Undefined. Saving Undefined removes the binding.
// Any change bumps sym's change stamp so that results computed under the
// old binding are evaluated again.
func (th *Thread) SaveLocal(sym *Symbol, v Value) Value {
	th.localsMu.Lock()
	defer th.localsMu.Unlock()

	if v.IsUndefined() {
		if th.locals == nil {
			return Undefined()
		}
		old, ok := th.locals.Remove(sym)
		if !ok {
			return Undefined()
		}
		th.nlocals.Add(-1)
		sym.touch()
		return old.value
	}

	if th.locals == nil {
		th.locals = hashtable.New[localEntry, *Symbol](localStrategy{}, 0)
	}
	old, replaced, err := th.locals.Insert(localEntry{sym: sym, value: v})
	if err != nil {
		th.rt.log.eval.Warningf("thread-local %s not saved: %s", sym.name, err)
		v.Release()
		return Undefined()
	}
	sym.touch()
	if !replaced {
		th.nlocals.Add(1)
		return Undefined()
	}
	return old.value
}

// LoadLocal returns a new reference to the nearest binding of sym on this
// thread or its ancestors.
func (th *Thread) LoadLocal(sym *Symbol) (Value, bool) {
	for t := th; t != nil; t = t.parent {
		if t.nlocals.Load() == 0 {
			continue
		}
		var v Value
		ok := false
		t.localsMu.RLock()
		if t.locals != nil {
			var e localEntry
			if e, ok = t.locals.Search(sym); ok {
				v = e.value.Clone()
			}
		}
		t.localsMu.RUnlock()
		if ok {
			return v, true
		}
	}
	return Null, false
}

// localOwner returns the nearest thread in th's ancestry that binds sym.
func (th *Thread) localOwner(sym *Symbol) *Thread {
	for t := th; t != nil; t = t.parent {
		if t.nlocals.Load() == 0 {
			continue
		}
		t.localsMu.RLock()
		ok := false
		if t.locals != nil {
			_, ok = t.locals.Search(sym)
		}
		t.localsMu.RUnlock()
		if ok {
			return t
		}
	}
	return nil
}

func (th *Thread) clearLocals() {
	th.localsMu.Lock()
	locals := th.locals
	th.locals = nil
	th.nlocals.Store(0)
	th.localsMu.Unlock()

	if locals == nil {
		return
	}
	for e := range locals.All() {
		e.value.Release()
	}
}

// SymbolValue resolves sym for th: the nearest thread-local binding, else
// the global value. The result is Undefined when neither exists.
func (rt *Runtime) SymbolValue(th *Thread, sym *Symbol) Value {
	if th != nil {
		if v, ok := th.LoadLocal(sym); ok {
			return v
		}
	}
	return sym.OwnValue()
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

// Finish ends the thread. An uncaught exception other than the abort
// sentinel is rethrown in the parent, or reported if there is none.
func (th *Thread) Finish() {
	rt := th.rt
	ex := rt.Abort.Catch(th)
	switch {
	case ex.IsUndefined(), ex.IsAbort():
		ex.Release()
	case th.parent == nil:
		rt.Message(rt.Sym.Throw, "nocatch", ex.Ref)
		ex.Release()
	case th.parent.State() == ThreadTerminated:
		rt.Message(rt.Sym.Thread, "lstl", ex.Ref)
		ex.Release()
	default:
		rt.Abort.Throw(th.parent, ex)
	}

	th.clearLocals()
	th.framesMu.Lock()
	th.frames = nil
	th.framesMu.Unlock()
	th.depth = 0
	th.setState(ThreadTerminated)
}
