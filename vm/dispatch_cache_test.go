package vm

import "testing"

func newLimboRuntime(t *testing.T, limbo int) *Runtime {
	t.Helper()
	rt := New(Options{SweepInterval: -1, LimboSize: limbo})
	t.Cleanup(rt.Close)
	return rt
}

func TestDispatchCacheSharesEqualKeyLists(t *testing.T) {
	rt := newLimboRuntime(t, 4)
	c := rt.Dispatch

	a, ok := c.ForKeys(rt.list(Int(1), rt.pat("x")))
	if !ok {
		t.Fatal("no table")
	}
	b, ok := c.ForKeys(rt.list(Int(1), rt.pat("x")))
	if !ok {
		t.Fatal("no table")
	}
	if a.Dispatch() != b.Dispatch() {
		t.Error("structurally equal key lists got different tables")
	}
	st := c.Stats()
	if st.Builds != 1 || st.Hits != 1 || st.Tables != 1 {
		t.Errorf("stats = %+v, want 1 build, 1 hit, 1 table", st)
	}
	a.Release()
	b.Release()
}

func TestDispatchCacheLimboRevival(t *testing.T) {
	rt := newLimboRuntime(t, 4)
	c := rt.Dispatch
	base := rt.heap.Live()

	a, _ := c.ForKeys(rt.list(Int(1), Int(2)))
	dt := a.Dispatch()
	a.Release()

	if st := c.Stats(); st.Limbo != 1 || st.Tables != 1 {
		t.Fatalf("after release: stats = %+v, want the table in limbo", st)
	}
	if rt.heap.Live() == base {
		t.Fatal("table in limbo was destroyed")
	}

	b, _ := c.ForKeys(rt.list(Int(1), Int(2)))
	if b.Dispatch() != dt {
		t.Error("limbo table was not revived")
	}
	if st := c.Stats(); st.Limbo != 0 || st.Builds != 1 {
		t.Errorf("after revival: stats = %+v", st)
	}
	b.Release()

	if n := c.FlushLimbo(); n != 1 {
		t.Errorf("FlushLimbo = %d, want 1", n)
	}
	if got := rt.heap.Live(); got != base {
		t.Errorf("live = %d after flush, want %d", got, base)
	}
	if st := c.Stats(); st.Tables != 0 {
		t.Errorf("tables = %d after flush, want 0", st.Tables)
	}
}

func TestDispatchCacheLimboEvictsOldest(t *testing.T) {
	rt := newLimboRuntime(t, 2)
	c := rt.Dispatch
	base := rt.heap.Live()

	var tables []*DispatchTable
	for i := int32(0); i < 3; i++ {
		v, _ := c.ForKeys(rt.list(Int(i)))
		tables = append(tables, v.Dispatch())
		v.Release()
	}
	if st := c.Stats(); st.Limbo != 2 || st.Tables != 2 {
		t.Fatalf("stats = %+v, want 2 in limbo and 2 cached", st)
	}

	// the first table was evicted, so asking again builds a new one
	v, _ := c.ForKeys(rt.list(Int(0)))
	if v.Dispatch() == tables[0] {
		t.Error("evicted table was revived")
	}
	v.Release()
	w, _ := c.ForKeys(rt.list(Int(2)))
	if w.Dispatch() != tables[2] {
		t.Error("newest limbo table was not revived")
	}
	w.Release()

	c.FlushLimbo()
	if got := rt.heap.Live(); got != base {
		t.Errorf("live = %d, want %d", got, base)
	}
}

func TestDispatchCacheZeroLimbo(t *testing.T) {
	rt := New(Options{SweepInterval: -1, LimboSize: -1})
	defer rt.Close()
	base := rt.heap.Live()

	v, _ := rt.Dispatch.ForKeys(rt.list(Int(1)))
	v.Release()
	if st := rt.Dispatch.Stats(); st.Limbo != 0 || st.Tables != 0 {
		t.Errorf("stats = %+v, want nothing kept", st)
	}
	if got := rt.heap.Live(); got != base {
		t.Errorf("live = %d, want %d", got, base)
	}
}

func TestDispatchCacheAttachesToRuleList(t *testing.T) {
	rt := newLimboRuntime(t, 4)
	c := rt.Dispatch
	rules := rt.list(rt.rule(Int(1), rt.str("one")), rt.rule(rt.pat("x"), rt.sym("x")))

	a, ok := c.ForRules(rules.Ref)
	if !ok {
		t.Fatal("no table")
	}
	if rules.Expr().attached.Load() != a.Dispatch() {
		t.Error("table not attached to rule list")
	}
	b, _ := c.ForRules(rules.Ref)
	if a.Dispatch() != b.Dispatch() {
		t.Error("second request built a new table")
	}
	a.Release()
	b.Release()

	// modifying the list in place drops the attachment
	rules = rules.SetItem(1, rt.rule(Int(2), rt.str("two")))
	if rules.Expr().attached.Load() != nil {
		t.Error("modified rule list still has a table attached")
	}
	rules.Release()
}
