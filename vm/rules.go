package vm

import "sync"

// ---------------------------------------------------------------------------
// RuleStore: an ordered rule list for one symbol and relation
// ---------------------------------------------------------------------------

// RuleStore holds an immutable list of Rule / RuleDelayed expressions.
// Writers publish a new list under the store's lock; readers take a
// reference to the current list and work on it unlocked.
type RuleStore struct {
	mu    sync.Mutex
	list  Value // List(rules...), or Null when empty
	owner *Symbol
	kind  RuleKind
}

// Rules returns a new reference to the current rule list, or Null.
func (rs *RuleStore) Rules() Value {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.list.Clone()
}

// Len returns the number of rules.
func (rs *RuleStore) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.list.Len()
}

// Replace installs list as the store's rule list, consuming it. Null
// empties the store.
func (rs *RuleStore) Replace(list Value) {
	rs.mu.Lock()
	old := rs.list
	rs.list = list
	rs.mu.Unlock()
	rs.owner.touch()
	old.Release()
}

func (rs *RuleStore) clear() { rs.Replace(Null) }

// Define installs lhs -> rhs, consuming both. A rule with the same
// left-hand side is replaced unless exactly one of the two right-hand sides
// carries a Condition guard, or both do with different guards. A guarded
// rule goes before an unguarded rule for the same pattern; anything else
// is appended.
func (rs *RuleStore) Define(rt *Runtime, lhs, rhs Value, delayed bool) {
	head := rt.Sym.Rule
	if delayed {
		head = rt.Sym.RuleDelayed
	}
	pattern := lhs.Ref
	guarded := rhs.HasHead(rt.Sym.Condition, 2)
	var guard Ref
	if guarded {
		guard = rhs.Expr().Arg(2)
	}
	rule := rt.heap.NewExpr(head.Value(), lhs, rhs)

	rs.mu.Lock()
	if rs.list.IsNull() {
		rs.list = rt.heap.NewExpr(rt.Sym.List.Value(), rule)
		rs.mu.Unlock()
		rs.owner.touch()
		return
	}

	insertAt := 0
	for _, pos := range rs.positions(rt, pattern) {
		old := ruleRHS(rs.list.Expr().Item(pos))
		oldGuarded := old.HasHead(rt.Sym.Condition, 2)
		switch {
		case !oldGuarded && !guarded,
			oldGuarded && guarded && Equal(old.Expr().Arg(2), guard):
			rs.list = rs.list.SetItem(pos, rule)
			rs.mu.Unlock()
			rs.owner.touch()
			return
		case !oldGuarded:
			insertAt = pos
		}
		if insertAt != 0 {
			break
		}
	}

	old := rs.list
	e := old.Expr()
	if insertAt == 0 {
		insertAt = len(e.items)
	}
	items := make([]Value, 0, len(e.items)+1)
	for i, it := range e.items {
		if i == insertAt {
			items = append(items, rule)
		}
		items = append(items, it.Clone())
	}
	if insertAt == len(e.items) {
		items = append(items, rule)
	}
	rs.list = rt.heap.exprFromItems(items)
	rs.mu.Unlock()

	rs.owner.touch()
	old.Release()
}

// Remove deletes every rule whose left-hand side is lhs, guarded or not,
// and reports whether one existed.
func (rs *RuleStore) Remove(rt *Runtime, lhs Ref) bool {
	rs.mu.Lock()
	drop := rs.positions(rt, lhs)
	if len(drop) == 0 {
		rs.mu.Unlock()
		return false
	}
	old := rs.list
	e := old.Expr()
	if e.Len() == len(drop) {
		rs.list = Null
	} else {
		items := make([]Value, 0, len(e.items)-len(drop))
		for i, it := range e.items {
			if len(drop) > 0 && i == drop[0] {
				drop = drop[1:]
				continue
			}
			items = append(items, it.Clone())
		}
		rs.list = rt.heap.exprFromItems(items)
	}
	rs.mu.Unlock()

	rs.owner.touch()
	old.Release()
	return true
}

// positions lists, in order, the rules whose left-hand side equals lhs.
// Caller holds rs.mu.
func (rs *RuleStore) positions(rt *Runtime, lhs Ref) []int {
	if rs.list.IsNull() {
		return nil
	}
	first := 0
	if dt, ok := rt.Dispatch.ForRules(rs.list.Ref); ok {
		first, _ = dt.Dispatch().LookupForAssignment(lhs)
		dt.Release()
		if first == 0 {
			return nil
		}
	} else {
		first = 1
	}
	var out []int
	e := rs.list.Expr()
	for i := first; i <= e.Len(); i++ {
		if Equal(ruleLHS(e.Item(i)), lhs) {
			out = append(out, i)
		}
	}
	return out
}

// Find applies the first matching rule to expr. It returns the rule's
// right-hand side with the match's bindings substituted.
func (rs *RuleStore) Find(ev *Evaluator, th *Thread, expr Ref) (Value, bool) {
	list := rs.Rules()
	if list.IsNull() {
		return Null, false
	}
	defer list.Release()

	m := ev.matcher(th)
	if dt, ok := ev.rt.Dispatch.ForRules(list.Ref); ok {
		defer dt.Release()
		_, rhs, ok := dt.Dispatch().Lookup(expr, m, list.Ref)
		return rhs, ok
	}

	// unindexed
	e := list.Expr()
	for i := 1; i <= e.Len(); i++ {
		rule := e.Item(i)
		if rhs, ok := m.Match(expr, ruleLHS(rule), ruleRHS(rule)); ok {
			return rhs, true
		}
	}
	return Null, false
}

func ruleLHS(rule Ref) Ref { return rule.Expr().Arg(1) }
func ruleRHS(rule Ref) Ref { return rule.Expr().Arg(2) }
