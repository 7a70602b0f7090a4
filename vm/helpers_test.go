package vm

import "testing"

// newTestRuntime creates a runtime without the background sweeper.
func newTestRuntime(t testing.TB) *Runtime {
	t.Helper()
	rt := New(Options{SweepInterval: -1})
	t.Cleanup(rt.Close)
	return rt
}

func (rt *Runtime) sym(name string) Value {
	return rt.Symbols.Intern(name).Value()
}

// call builds head(args...) with a symbol head.
func (rt *Runtime) call(head string, args ...Value) Value {
	return rt.heap.NewExpr(rt.sym(head), args...)
}

func (rt *Runtime) str(s string) Value { return rt.heap.NewString(s) }

// blank is SingleMatch(), or SingleMatch(h) when a head is given.
func (rt *Runtime) blank(head ...string) Value {
	if len(head) > 0 {
		return rt.call("SingleMatch", rt.sym(head[0]))
	}
	return rt.call("SingleMatch")
}

// pat is Pattern(name, SingleMatch()).
func (rt *Runtime) pat(name string) Value {
	return rt.call("Pattern", rt.sym(name), rt.blank())
}

func (rt *Runtime) rule(lhs, rhs Value) Value {
	return rt.call("Rule", lhs, rhs)
}

func (rt *Runtime) list(items ...Value) Value {
	return rt.call("List", items...)
}

func assertFullForm(t *testing.T, got Ref, want string) {
	t.Helper()
	if s := got.String(); s != want {
		t.Errorf("got %s, want %s", s, want)
	}
}
