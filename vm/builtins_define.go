package vm

// ---------------------------------------------------------------------------
// Definitions: Set, SetDelayed, TagSetDelayed, Unset, Clear, attributes
// ---------------------------------------------------------------------------

func builtinSet(ev *Evaluator, th *Thread, expr Value) Value {
	return assign(ev, th, expr, false)
}

func builtinSetDelayed(ev *Evaluator, th *Thread, expr Value) Value {
	return assign(ev, th, expr, true)
}

// assign stores lhs = rhs as the own value of a symbol, or as a down rule
// (head is a symbol) or sub rule (head is an expression) of the lhs's
// topmost symbol. Set returns the right-hand side, SetDelayed Null.
func assign(ev *Evaluator, th *Thread, expr Value, delayed bool) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 2 {
		return expr
	}
	lhs, rhs := e.Item(1), e.Item(2)

	result := Null
	if !delayed {
		result = rhs.Clone()
	}

	sym := lhs.TopmostSymbol()
	switch {
	case sym == nil:
		rt.Message(rt.Sym.Set, "setraw", lhs)
	case sym.Attributes()&Protected != 0:
		rt.Message(rt.Sym.Set, "wrsym", sym.Ref())
	case lhs.IsSymbol():
		if owner := th.localOwner(sym); owner != nil {
			owner.SaveLocal(sym, rhs.Clone()).Release()
		} else {
			sym.SetOwnValue(rhs.Clone())
		}
	default:
		kind := SubRules
		if lhs.Expr().Head().IsSymbol() {
			kind = DownRules
		}
		sym.Rules(kind).Define(rt, lhs.Clone(), rhs.Clone(), delayed)
	}
	expr.Release()
	return result
}

// TagSetDelayed(tag, lhs, rhs) stores an up rule for tag.
func builtinTagSetDelayed(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 3 || !e.Item(1).IsSymbol() || !e.Item(2).IsExpr() {
		return expr
	}
	tag := e.Item(1).Symbol()
	if tag.Attributes()&Protected != 0 {
		rt.Message(rt.Sym.Set, "wrsym", tag.Ref())
	} else {
		tag.Rules(UpRules).Define(rt, e.Item(2).Clone(), e.Item(3).Clone(), true)
	}
	expr.Release()
	return Null
}

func builtinUnset(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 1 {
		return expr
	}
	lhs := e.Item(1)
	sym := lhs.TopmostSymbol()
	switch {
	case sym == nil:
		rt.Message(rt.Sym.Set, "setraw", lhs)
	case sym.Attributes()&Protected != 0:
		rt.Message(rt.Sym.Set, "wrsym", sym.Ref())
	case lhs.IsSymbol():
		if owner := th.localOwner(sym); owner != nil {
			owner.SaveLocal(sym, sym.Value()).Release()
		} else {
			sym.SetOwnValue(Undefined())
		}
	default:
		kind := SubRules
		if lhs.Expr().Head().IsSymbol() {
			kind = DownRules
		}
		sym.Rules(kind).Remove(rt, lhs)
	}
	expr.Release()
	return Null
}

// Clear(s, ...) removes all values, rules and attributes of unprotected
// symbols.
func builtinClear(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	for i := 1; i <= e.Len(); i++ {
		sym := e.Item(i).Symbol()
		switch {
		case sym == nil:
		case sym.Attributes()&Protected != 0:
			rt.Message(rt.Sym.Set, "wrsym", sym.Ref())
		default:
			sym.Clear()
		}
	}
	expr.Release()
	return Null
}

// SetAttributes(s, attr) or SetAttributes(s, List(attr, ...)).
func builtinSetAttributes(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 2 || !e.Item(1).IsSymbol() {
		return expr
	}
	sym := e.Item(1).Symbol()

	var names []Ref
	if attrArg := e.Item(2); attrArg.HasHead(rt.Sym.List, -1) {
		for i := 1; i <= attrArg.Len(); i++ {
			names = append(names, attrArg.Expr().Item(i))
		}
	} else {
		names = append(names, attrArg)
	}

	var attrs Attributes
	for _, n := range names {
		a, ok := parseAttributeRef(n)
		if !ok {
			rt.Message(rt.Sym.SetAttributes, "unknownattr", n)
			continue
		}
		attrs |= a
	}
	if attrs != 0 {
		sym.AddAttributes(attrs)
	}
	expr.Release()
	return Null
}

func parseAttributeRef(r Ref) (Attributes, bool) {
	switch {
	case r.IsSymbol():
		return ParseAttribute(r.Symbol().name)
	case r.IsString():
		return ParseAttribute(r.Str())
	}
	return 0, false
}

// Attributes(s) lists the attribute names of s as symbols.
func builtinAttributes(ev *Evaluator, th *Thread, expr Value) Value {
	rt := ev.rt
	e := expr.Expr()
	if e.Len() != 1 || !e.Item(1).IsSymbol() {
		return expr
	}
	names := e.Item(1).Symbol().Attributes().Names()
	out := rt.heap.MakeExpr(rt.Sym.List.Value(), len(names))
	for i, n := range names {
		out = out.SetItem(i+1, rt.Symbols.Intern(n).Value())
	}
	expr.Release()
	return out
}
