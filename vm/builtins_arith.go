package vm

import "math/big"

// ---------------------------------------------------------------------------
// Integer arithmetic and comparison
// ---------------------------------------------------------------------------

func builtinPlus(ev *Evaluator, th *Thread, expr Value) Value {
	return foldNumbers(ev.rt.heap, expr, 0, (*big.Int).Add, nil)
}

func builtinTimes(ev *Evaluator, th *Thread, expr Value) Value {
	zero := func(acc *big.Int) bool { return acc.Sign() == 0 }
	return foldNumbers(ev.rt.heap, expr, 1, (*big.Int).Mul, zero)
}

// foldNumbers combines the numeric arguments of a Flat, Orderless
// operator. The remaining arguments are kept after the combined number.
// absorbing, if set, reports a combined number that makes the whole
// expression equal to it (zero for Times). The expression is returned
// unchanged when there is nothing to combine.
func foldNumbers(h *Heap, expr Value, identity int64, op func(z, x, y *big.Int) *big.Int, absorbing func(*big.Int) bool) Value {
	e := expr.Expr()
	n := e.Len()
	if n == 0 {
		expr.Release()
		return Int(int32(identity))
	}
	if n == 1 {
		x := e.Item(1).Clone()
		expr.Release()
		return x
	}

	acc := big.NewInt(identity)
	numbers := 0
	var rest []Ref
	for i := 1; i <= n; i++ {
		it := e.Item(i)
		if it.IsNumber() {
			op(acc, acc, it.BigInt())
			numbers++
			continue
		}
		rest = append(rest, it)
	}

	switch {
	case numbers == 0:
		return expr
	case len(rest) == 0:
	case absorbing != nil && absorbing(acc):
	case numbers == 1 && acc.Cmp(big.NewInt(identity)) != 0:
		return expr
	default:
		items := make([]Value, 0, len(rest)+2)
		items = append(items, e.Item(0).Clone())
		if acc.Cmp(big.NewInt(identity)) != 0 {
			items = append(items, h.NewInteger(acc))
		}
		for _, r := range rest {
			items = append(items, r.Clone())
		}
		expr.Release()
		if len(items) == 2 {
			x := items[1]
			items[0].Release()
			return x
		}
		return h.exprFromItems(items)
	}
	expr.Release()
	return h.NewInteger(acc)
}

func builtinSameQ(ev *Evaluator, th *Thread, expr Value) Value {
	e := expr.Expr()
	same := true
	for i := 2; i <= e.Len() && same; i++ {
		same = Equal(e.Item(i-1), e.Item(i))
	}
	expr.Release()
	return ev.rt.Sym.Bool(same)
}

func builtinLess(ev *Evaluator, th *Thread, expr Value) Value {
	return compareChain(ev, expr, func(c int) bool { return c < 0 })
}

func builtinGreater(ev *Evaluator, th *Thread, expr Value) Value {
	return compareChain(ev, expr, func(c int) bool { return c > 0 })
}

// compareChain decides a(1) op a(2) op ... when all arguments are numbers.
// Otherwise expr is returned unchanged.
func compareChain(ev *Evaluator, expr Value, holds func(int) bool) Value {
	e := expr.Expr()
	for i := 1; i <= e.Len(); i++ {
		if !e.Item(i).IsNumber() {
			return expr
		}
	}
	ok := true
	for i := 2; i <= e.Len() && ok; i++ {
		ok = holds(compareNumbers(e.Item(i-1), e.Item(i)))
	}
	expr.Release()
	return ev.rt.Sym.Bool(ok)
}

func compareNumbers(a, b Ref) int {
	if a.kind == KindInt && b.kind == KindInt {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	return a.BigInt().Cmp(b.BigInt())
}
