package vm

// ---------------------------------------------------------------------------
// Evaluator: the attribute-driven rewrite loop
// ---------------------------------------------------------------------------

// Evaluator rewrites values to a fixed point using symbol values, rules and
// builtin code. One Evaluator serves every thread of its runtime; the
// per-thread state lives in Thread.
type Evaluator struct {
	rt           *Runtime
	maxDepth     int
	flattenDepth int
}

// Runtime returns the runtime the evaluator belongs to.
func (ev *Evaluator) Runtime() *Runtime { return ev.rt }

// Evaluate rewrites v until nothing applies, an updated expression is
// reached, or th is aborting. It consumes v. A nil th evaluates on a
// temporary top-level thread.
func (ev *Evaluator) Evaluate(th *Thread, v Value) Value {
	if th == nil {
		th = ev.rt.NewThread(nil)
		defer th.Finish()
	}
	for !ev.rt.Abort.Aborting(th) {
		switch v.kind {
		case KindSymbol:
			val := ev.rt.SymbolValue(th, v.Symbol())
			if val.IsUndefined() || val.SameAs(v.Ref) {
				val.Release()
				return v
			}
			v.Release()
			v = val

		case KindExpr:
			if IsUpdated(v.Ref) {
				return v
			}
			var done bool
			v, done = ev.evalExpr(th, v)
			if done {
				return v
			}

		default:
			return v
		}
	}
	return v
}

// HeadOf returns the head of r: the head of an expression, or Integer,
// String or Symbol for atoms. Other atoms have a Null head.
func (ev *Evaluator) HeadOf(r Ref) Ref {
	s := &ev.rt.Sym
	switch r.kind {
	case KindExpr:
		return r.Expr().Head()
	case KindInt, KindNumber:
		return s.Integer.Ref()
	case KindString:
		return s.String.Ref()
	case KindSymbol:
		return s.SymbolHead.Ref()
	}
	return Ref{}
}

// evalExpr performs one pass over expr. It reports done when the result
// needs no further evaluation by the caller's loop.
func (ev *Evaluator) evalExpr(th *Thread, expr Value) (Value, bool) {
	rt := ev.rt
	s := &rt.Sym

	th.enter(expr.TopmostSymbol())
	defer th.leave()

	if th.depth > ev.maxDepth {
		if !th.reclimReported {
			th.reclimReported = true
			rt.Message(s.General, "reclim", Int(int32(ev.maxDepth)).Ref, expr.Ref)
		}
		held := rt.heap.NewExpr(s.Hold.Value(), expr)
		markUpdated(held)
		return held, true
	}

	// head
	head := expr.Expr().Head()
	newHead := ev.Evaluate(th, head.Clone())
	if !newHead.SameAs(head) {
		return expr.SetItem(0, newHead), false
	}
	newHead.Release()
	head = expr.Expr().Head()
	if rt.Abort.Aborting(th) {
		return expr, true
	}

	var attrs Attributes
	if sym := head.Symbol(); sym != nil {
		attrs = sym.Attributes()
	} else if top := head.TopmostSymbol(); top != nil && top.Attributes()&DeepHoldAll != 0 {
		attrs = HoldAll
	}

	// arguments
	expr = ev.evaluateArgs(th, expr, attrs)
	if rt.Abort.Aborting(th) {
		return expr, true
	}

	if attrs&Listable != 0 {
		if threaded, ok := ev.threadListable(expr.Ref); ok {
			expr.Release()
			return threaded, false
		}
	}
	if attrs&Flat != 0 {
		expr = Flatten(expr, ev.flattenDepth)
	}
	if attrs&(SequenceHold|HoldAllComplete) == 0 {
		expr = SpliceSequences(expr, s.Sequence)
	}
	if attrs&Orderless != 0 {
		expr = SortArgs(expr)
	}

	var original Value
	if attrs&HoldAllComplete == 0 {
		if stripped, ok := ev.stripUnevaluated(expr.Ref); ok {
			original = expr
			expr = stripped
		}
	}

	// rules
	if rhs, up, ok := ev.findRule(th, expr.Ref, attrs); ok {
		original.Release()
		expr.Release()
		if up || !containsSymbol(rhs.Ref, s.Return) {
			return rhs, false
		}
		return ev.explicitReturn(th, rhs), true
	}
	if rt.Abort.Aborting(th) {
		original.Release()
		return expr, true
	}

	// builtin code
	for _, hook := range ev.hooks(expr.Ref, attrs) {
		prevObj := expr.obj
		prevStamp := expr.Expr().LastChange()
		res := hook(ev, th, expr)
		if res.obj != prevObj || !res.IsExpr() || res.Expr().LastChange() != prevStamp {
			original.Release()
			return res, false
		}
		expr = res
	}

	// no rule applies
	if !original.IsNull() {
		expr.Release()
		expr = original
	}
	markUpdated(expr)
	return expr, true
}

func (ev *Evaluator) evaluateArgs(th *Thread, expr Value, attrs Attributes) Value {
	s := &ev.rt.Sym
	complete := attrs&HoldAllComplete != 0
	n := expr.Len()
	for i := 1; i <= n; i++ {
		if ev.rt.Abort.Aborting(th) {
			break
		}
		arg := expr.Expr().Item(i)
		held := complete ||
			(i == 1 && attrs&HoldFirst != 0) ||
			(i > 1 && attrs&HoldRest != 0)
		if held && (complete || !arg.HasHead(s.Evaluate, -1)) {
			continue
		}
		v := ev.Evaluate(th, arg.Clone())
		if v.SameAs(arg) {
			v.Release()
			continue
		}
		expr = expr.SetItem(i, v)
	}
	return expr
}

// threadListable rewrites f(List(a1, a2), b) to List(f(a1, b), f(a2, b)).
// It reports false when no argument is a List, or when the lists differ in
// length (after reporting General::tdlen).
func (ev *Evaluator) threadListable(expr Ref) (Value, bool) {
	rt := ev.rt
	e := expr.Expr()
	length := -1
	for i := 1; i <= e.Len(); i++ {
		it := e.Item(i)
		if !it.HasHead(rt.Sym.List, -1) {
			continue
		}
		if length >= 0 && it.Len() != length {
			rt.Message(rt.Sym.General, "tdlen", expr)
			return Null, false
		}
		length = it.Len()
	}
	if length < 0 {
		return Null, false
	}

	out := rt.heap.MakeExpr(rt.Sym.List.Value(), length)
	for k := 1; k <= length; k++ {
		items := make([]Value, len(e.items))
		items[0] = e.items[0].Clone()
		for i := 1; i <= e.Len(); i++ {
			it := e.Item(i)
			if it.HasHead(rt.Sym.List, -1) {
				items[i] = it.GetItem(k)
			} else {
				items[i] = it.Clone()
			}
		}
		out = out.SetItem(k, rt.heap.exprFromItems(items))
	}
	return out, true
}

// stripUnevaluated replaces arguments Unevaluated(x) by x.
func (ev *Evaluator) stripUnevaluated(expr Ref) (Value, bool) {
	unevaluated := ev.rt.Sym.Unevaluated
	e := expr.Expr()
	found := false
	for i := 1; i <= e.Len(); i++ {
		if e.Item(i).HasHead(unevaluated, 1) {
			found = true
			break
		}
	}
	if !found {
		return Null, false
	}
	items := make([]Value, len(e.items))
	for i, it := range e.items {
		if i > 0 && it.HasHead(unevaluated, 1) {
			items[i] = it.Expr().Item(1).Clone()
		} else {
			items[i] = it.Clone()
		}
	}
	return ev.rt.heap.exprFromItems(items), true
}

// findRule tries the up rules of the arguments' topmost symbols, then the
// down rules (symbol head) or sub rules (expression head) of the head's
// topmost symbol. up reports that an up rule matched.
func (ev *Evaluator) findRule(th *Thread, expr Ref, attrs Attributes) (rhs Value, up, ok bool) {
	e := expr.Expr()
	if attrs&HoldAllComplete == 0 {
		for i := 1; i <= e.Len(); i++ {
			sym := e.Item(i).TopmostSymbol()
			if sym == nil || sym.Rules(UpRules).Len() == 0 {
				continue
			}
			if rhs, ok := sym.Rules(UpRules).Find(ev, th, expr); ok {
				return rhs, true, true
			}
		}
	}

	head := e.Head()
	sym := head.TopmostSymbol()
	if sym == nil {
		return Null, false, false
	}
	kind := SubRules
	if head.IsSymbol() {
		kind = DownRules
	}
	rs := sym.Rules(kind)
	if rs.Len() == 0 {
		return Null, false, false
	}
	rhs, ok = rs.Find(ev, th, expr)
	return rhs, false, ok
}

// explicitReturn evaluates the result of a down or sub rule that mentions
// Return and unwraps Return(x) to x and Return() to Null.
func (ev *Evaluator) explicitReturn(th *Thread, rhs Value) Value {
	ret := ev.rt.Sym.Return
	v := ev.Evaluate(th, rhs)
	switch {
	case v.HasHead(ret, 1):
		x := v.Expr().Item(1).Clone()
		v.Release()
		return x
	case v.HasHead(ret, 0):
		v.Release()
		return Null
	}
	return v
}

// containsSymbol reports whether sym occurs anywhere in r.
func containsSymbol(r Ref, sym *Symbol) bool {
	if r.Symbol() == sym {
		return true
	}
	root := r.Expr()
	if root == nil {
		return false
	}
	stack := []*Expr{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, it := range e.items {
			switch it.kind {
			case KindSymbol:
				if it.Symbol() == sym {
					return true
				}
			case KindExpr:
				stack = append(stack, it.Expr())
			}
		}
	}
	return false
}

// hooks lists the builtin code to try for expr, in order: early code of
// the head, up code of the arguments, then down or sub code of the head.
func (ev *Evaluator) hooks(expr Ref, attrs Attributes) []Hook {
	var out []Hook
	e := expr.Expr()
	head := e.Head()
	top := head.TopmostSymbol()
	if top != nil {
		if h := top.Hook(EarlyCode); h != nil {
			out = append(out, h)
		}
	}
	if attrs&HoldAllComplete == 0 {
		for i := 1; i <= e.Len(); i++ {
			if sym := e.Item(i).TopmostSymbol(); sym != nil {
				if h := sym.Hook(UpCode); h != nil {
					out = append(out, h)
				}
			}
		}
	}
	if top != nil {
		kind := SubCode
		if head.IsSymbol() {
			kind = DownCode
		}
		if h := top.Hook(kind); h != nil {
			out = append(out, h)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Change tracking
// ---------------------------------------------------------------------------

func markUpdated(v Value) {
	if e := v.Expr(); e != nil {
		e.lastChange.Store(e.heap.Now())
	}
}

// IsUpdated reports whether r is in evaluated normal form: an expression
// stamped updated in which no symbol or subexpression has changed since.
// Atoms are always updated.
func IsUpdated(r Ref) bool {
	e := r.Expr()
	if e == nil {
		return true
	}
	stamp := e.lastChange.Load()
	if stamp < 0 {
		return false
	}
	if stamp >= e.heap.Now() {
		return true
	}
	return !changedSince(e, stamp)
}

func changedSince(root *Expr, stamp int64) bool {
	stack := []*Expr{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, it := range e.items {
			switch it.kind {
			case KindSymbol:
				if it.Symbol().LastChange() > stamp {
					return true
				}
			case KindExpr:
				c := it.Expr()
				if c.lastChange.Load() > stamp {
					return true
				}
				stack = append(stack, c)
			}
		}
	}
	return false
}
