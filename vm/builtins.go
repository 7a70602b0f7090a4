package vm

// ---------------------------------------------------------------------------
// Builtin symbols
// ---------------------------------------------------------------------------

// Builtins holds the symbols the evaluator and the core builtins refer to
// directly.
type Builtins struct {
	List         *Symbol
	Sequence     *Symbol
	Hold         *Symbol
	HoldComplete *Symbol
	Unevaluated  *Symbol
	Evaluate     *Symbol
	Return       *Symbol

	Condition   *Symbol
	Rule        *Symbol
	RuleDelayed *Symbol

	Set           *Symbol
	SetDelayed    *Symbol
	TagSetDelayed *Symbol
	Unset         *Symbol
	Clear         *Symbol
	SetAttributes *Symbol
	Attributes    *Symbol

	Block   *Symbol
	If      *Symbol
	SameQ   *Symbol
	Less    *Symbol
	Greater *Symbol
	Plus    *Symbol
	Times   *Symbol

	Throw       *Symbol
	Catch       *Symbol
	Abort       *Symbol
	ParallelMap *Symbol

	True  *Symbol
	False *Symbol

	SingleMatch  *Symbol
	Pattern      *Symbol
	Alternatives *Symbol
	HoldPattern  *Symbol
	TestPattern  *Symbol
	Except       *Symbol

	// heads of atoms
	Integer    *Symbol
	String     *Symbol
	SymbolHead *Symbol

	// message groups
	General *Symbol
	Thread  *Symbol
}

func (b *Builtins) intern(st *SymbolTable) {
	names := []struct {
		p    **Symbol
		name string
	}{
		{&b.List, "List"},
		{&b.Sequence, "Sequence"},
		{&b.Hold, "Hold"},
		{&b.HoldComplete, "HoldComplete"},
		{&b.Unevaluated, "Unevaluated"},
		{&b.Evaluate, "Evaluate"},
		{&b.Return, "Return"},
		{&b.Condition, "Condition"},
		{&b.Rule, "Rule"},
		{&b.RuleDelayed, "RuleDelayed"},
		{&b.Set, "Set"},
		{&b.SetDelayed, "SetDelayed"},
		{&b.TagSetDelayed, "TagSetDelayed"},
		{&b.Unset, "Unset"},
		{&b.Clear, "Clear"},
		{&b.SetAttributes, "SetAttributes"},
		{&b.Attributes, "Attributes"},
		{&b.Block, "Block"},
		{&b.If, "If"},
		{&b.SameQ, "SameQ"},
		{&b.Less, "Less"},
		{&b.Greater, "Greater"},
		{&b.Plus, "Plus"},
		{&b.Times, "Times"},
		{&b.Throw, "Throw"},
		{&b.Catch, "Catch"},
		{&b.Abort, "Abort"},
		{&b.ParallelMap, "ParallelMap"},
		{&b.True, "True"},
		{&b.False, "False"},
		{&b.SingleMatch, "SingleMatch"},
		{&b.Pattern, "Pattern"},
		{&b.Alternatives, "Alternatives"},
		{&b.HoldPattern, "HoldPattern"},
		{&b.TestPattern, "TestPattern"},
		{&b.Except, "Except"},
		{&b.Integer, "Integer"},
		{&b.String, "String"},
		{&b.SymbolHead, "Symbol"},
		{&b.General, "General"},
		{&b.Thread, "Thread"},
	}
	for _, n := range names {
		*n.p = st.Intern(n.name)
	}
}

// Bool returns True or False.
func (b *Builtins) Bool(ok bool) Value {
	if ok {
		return b.True.Value()
	}
	return b.False.Value()
}

// ---------------------------------------------------------------------------
// Installation
// ---------------------------------------------------------------------------

type builtinDef struct {
	sym   *Symbol
	attrs Attributes
	code  Hook
}

func (rt *Runtime) installBuiltins() {
	s := &rt.Sym
	defs := []builtinDef{
		{s.List, 0, nil},
		{s.Sequence, 0, nil},
		{s.Hold, HoldAll, nil},
		{s.HoldComplete, HoldAllComplete, nil},
		{s.Unevaluated, HoldAllComplete, nil},
		{s.Evaluate, 0, builtinEvaluate},
		{s.Return, 0, nil},
		{s.Condition, HoldAll, nil},
		{s.Rule, SequenceHold, nil},
		{s.RuleDelayed, HoldRest | SequenceHold, nil},

		{s.Set, HoldFirst | SequenceHold, builtinSet},
		{s.SetDelayed, HoldAll | SequenceHold, builtinSetDelayed},
		{s.TagSetDelayed, HoldAll | SequenceHold, builtinTagSetDelayed},
		{s.Unset, HoldFirst, builtinUnset},
		{s.Clear, HoldAll, builtinClear},
		{s.SetAttributes, HoldFirst, builtinSetAttributes},
		{s.Attributes, HoldAll, builtinAttributes},

		{s.Block, HoldAll, builtinBlock},
		{s.If, HoldRest, builtinIf},
		{s.SameQ, 0, builtinSameQ},
		{s.Less, 0, builtinLess},
		{s.Greater, 0, builtinGreater},
		{s.Plus, Flat | Orderless | Listable | NumericFunction, builtinPlus},
		{s.Times, Flat | Orderless | Listable | NumericFunction, builtinTimes},

		{s.Throw, 0, builtinThrow},
		{s.Catch, HoldFirst, builtinCatch},
		{s.Abort, 0, builtinAbort},
		{s.ParallelMap, 0, builtinParallelMap},

		{s.True, 0, nil},
		{s.False, 0, nil},

		{s.SingleMatch, 0, nil},
		{s.Pattern, HoldFirst, nil},
		{s.Alternatives, 0, nil},
		{s.HoldPattern, HoldAll, nil},
		{s.TestPattern, HoldRest, nil},
		{s.Except, 0, nil},
	}
	for _, d := range defs {
		d.sym.SetAttributes(d.attrs | Protected)
		if d.code != nil {
			d.sym.SetHook(DownCode, d.code)
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluation control
// ---------------------------------------------------------------------------

// Evaluate(x) gives x, already evaluated; several arguments become a
// Sequence.
func builtinEvaluate(ev *Evaluator, th *Thread, expr Value) Value {
	e := expr.Expr()
	if e.Len() == 1 {
		x := e.Item(1).Clone()
		expr.Release()
		return x
	}
	return expr.SetItem(0, ev.rt.Sym.Sequence.Value())
}

func builtinIf(ev *Evaluator, th *Thread, expr Value) Value {
	e := expr.Expr()
	n := e.Len()
	if n < 2 || n > 4 {
		return expr
	}
	var pick int
	switch cond := e.Item(1).Symbol(); {
	case cond == ev.rt.Sym.True:
		pick = 2
	case cond == ev.rt.Sym.False:
		pick = 3
	case n == 4:
		pick = 4
	default:
		return expr
	}
	out := e.Arg(pick).Clone()
	expr.Release()
	return out
}

// Block(List(x, y = v, ...), body) evaluates body with thread-local
// bindings for the listed symbols. A symbol without an initial value is
// bound to itself, which shadows any global value.
func builtinBlock(ev *Evaluator, th *Thread, expr Value) Value {
	s := &ev.rt.Sym
	e := expr.Expr()
	if e.Len() != 2 || !e.Item(1).HasHead(s.List, -1) {
		return expr
	}
	vars := e.Item(1).Expr()

	type saved struct {
		sym *Symbol
		old Value
	}
	var restore []saved
	for i := 1; i <= vars.Len(); i++ {
		local := vars.Item(i)
		var sym *Symbol
		var val Value
		switch {
		case local.IsSymbol():
			sym = local.Symbol()
			val = sym.Value()
		case local.HasHead(s.Set, 2) && local.Expr().Item(1).IsSymbol():
			sym = local.Expr().Item(1).Symbol()
			val = ev.Evaluate(th, local.Expr().Item(2).Clone())
		default:
			continue
		}
		restore = append(restore, saved{sym: sym, old: th.SaveLocal(sym, val)})
	}

	result := ev.Evaluate(th, e.Item(2).Clone())

	for i := len(restore) - 1; i >= 0; i-- {
		th.SaveLocal(restore[i].sym, restore[i].old).Release()
	}
	expr.Release()
	return result
}

// ---------------------------------------------------------------------------
// Exceptions and aborts
// ---------------------------------------------------------------------------

func builtinThrow(ev *Evaluator, th *Thread, expr Value) Value {
	e := expr.Expr()
	if e.Len() != 1 {
		return expr
	}
	ev.rt.Abort.Throw(th, e.Item(1).Clone())
	expr.Release()
	return Null
}

// Catch(body) evaluates body and returns the value thrown during that
// evaluation, if any. The abort sentinel is not caught.
func builtinCatch(ev *Evaluator, th *Thread, expr Value) Value {
	e := expr.Expr()
	if e.Len() != 1 {
		return expr
	}
	result := ev.Evaluate(th, e.Item(1).Clone())
	expr.Release()

	ex := ev.rt.Abort.Catch(th)
	switch {
	case ex.IsUndefined():
		return result
	case ex.IsAbort():
		ev.rt.Abort.Throw(th, ex)
		return result
	}
	result.Release()
	return ex
}

func builtinAbort(ev *Evaluator, th *Thread, expr Value) Value {
	if expr.Len() != 0 {
		return expr
	}
	expr.Release()
	ev.rt.Abort.AbortPlease()
	return AbortException()
}

// ParallelMap(f, List(a, b, ...)) evaluates f(a), f(b), ... on child
// threads and collects the results in order. An exception thrown in a
// child reaches this thread when the child finishes.
func builtinParallelMap(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 2 || !e.Item(2).HasHead(rt.Sym.List, -1) {
		return expr
	}
	f := e.Item(1)
	list := e.Item(2).Expr()

	handles := make([]*ThreadHandle, list.Len())
	for i := range handles {
		call := rt.heap.NewExpr(f.Clone(), list.Item(i+1).Clone())
		handles[i] = rt.Spawn(th, func(child *Thread) Value {
			return ev.Evaluate(child, call)
		})
	}

	out := rt.heap.MakeExpr(rt.Sym.List.Value(), len(handles))
	for i, h := range handles {
		out = out.SetItem(i+1, h.Wait())
	}
	expr.Release()
	return out
}
