package vm

import (
	"slices"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Expr: head plus 1-based argument sequence
// ---------------------------------------------------------------------------

// Expr is a heap expression. items[0] is the head, items[1:] the
// arguments. An expression may be modified in place only while its holder
// owns the sole reference; otherwise modification copies.
type Expr struct {
	header
	items []Value

	// lastChange is negative while the expression is dirty and holds the
	// change time at which it was last found to be in normal form otherwise.
	lastChange atomic.Int64

	// attached is the dispatch table built for this expression when it is
	// used as a rule list. The expression owns one reference to it.
	attached atomic.Pointer[DispatchTable]
}

func (e *Expr) drop(stack []object) []object {
	if dt := e.attached.Swap(nil); dt != nil {
		stack = dropChild(dt.value(), stack)
	}
	for i := range e.items {
		stack = dropChild(e.items[i], stack)
		e.items[i] = Value{}
	}
	e.items = nil
	return stack
}

// Len returns the number of arguments.
func (e *Expr) Len() int { return len(e.items) - 1 }

// Head returns the head.
func (e *Expr) Head() Ref { return e.items[0].Ref }

// Item returns item i: 0 is the head, 1..Len the arguments.
func (e *Expr) Item(i int) Ref { return e.items[i].Ref }

// Arg is Item for i >= 1, returning Null when i is out of range.
func (e *Expr) Arg(i int) Ref {
	if i < 1 || i >= len(e.items) {
		return Ref{}
	}
	return e.items[i].Ref
}

// LastChange returns the expression's change stamp.
func (e *Expr) LastChange() int64 { return e.lastChange.Load() }

func (e *Expr) touch() {
	e.lastChange.Store(-e.heap.Tick())
	if dt := e.attached.Swap(nil); dt != nil {
		dt.value().Release()
	}
}

// NewExpr builds head(args...). It consumes head and args.
func (h *Heap) NewExpr(head Value, args ...Value) Value {
	items := make([]Value, len(args)+1)
	items[0] = head
	copy(items[1:], args)
	return h.exprFromItems(items)
}

// MakeExpr builds head with n Null arguments to be filled by SetItem.
func (h *Heap) MakeExpr(head Value, n int) Value {
	items := make([]Value, n+1)
	items[0] = head
	return h.exprFromItems(items)
}

// exprFromItems takes ownership of items and of the slice itself.
func (h *Heap) exprFromItems(items []Value) Value {
	e := &Expr{items: items}
	h.track(&e.header)
	e.lastChange.Store(-h.Tick())
	return Value{Ref{kind: KindExpr, obj: e}}
}

// GetItem returns a new reference to item i of an expression.
func (r Ref) GetItem(i int) Value {
	e := r.Expr()
	if e == nil || i < 0 || i >= len(e.items) {
		return Value{}
	}
	return e.items[i].Clone()
}

// Len returns the argument count of an expression and 0 for atoms.
func (r Ref) Len() int {
	if e := r.Expr(); e != nil {
		return e.Len()
	}
	return 0
}

// Unique reports whether v is the only reference to its heap object.
func (r Ref) Unique() bool {
	if r.obj == nil {
		return true
	}
	hd := r.obj.hdr()
	return !hd.immortal && hd.refs.Load() == 1
}

// SetItem replaces item i. It consumes v and x and returns the resulting
// expression, which is v itself when v was uniquely owned and a fresh copy
// otherwise.
func (v Value) SetItem(i int, x Value) Value {
	e := v.Expr()
	if e == nil || i < 0 || i >= len(e.items) {
		x.Release()
		return v
	}
	if e.items[i].SameAs(x.Ref) {
		x.Release()
		return v
	}
	if v.Unique() {
		old := e.items[i]
		e.items[i] = x
		e.touch()
		old.Release()
		return v
	}

	items := make([]Value, len(e.items))
	for j := range e.items {
		if j != i {
			items[j] = e.items[j].Clone()
		}
	}
	items[i] = x
	h := e.heap
	v.Release()
	return h.exprFromItems(items)
}

// cloneItems returns owned copies of the expression's items.
func (e *Expr) cloneItems() []Value {
	items := make([]Value, len(e.items))
	for i := range e.items {
		items[i] = e.items[i].Clone()
	}
	return items
}

// ---------------------------------------------------------------------------
// Structural rewrites used by the attribute pipeline
// ---------------------------------------------------------------------------

// Flatten splices arguments whose head equals the expression's own head
// into the argument list, descending at most depth levels. It consumes v.
func Flatten(v Value, depth int) Value {
	e := v.Expr()
	if e == nil || depth <= 0 || !needsFlatten(e, e.Head()) {
		return v
	}
	items := make([]Value, 1, len(e.items))
	items[0] = e.items[0].Clone()
	items = appendFlattened(items, e, e.Head(), depth)
	h := e.heap
	v.Release()
	return h.exprFromItems(items)
}

func needsFlatten(e *Expr, head Ref) bool {
	for _, it := range e.items[1:] {
		if c := it.Expr(); c != nil && Equal(c.Head(), head) {
			return true
		}
	}
	return false
}

func appendFlattened(dst []Value, e *Expr, head Ref, depth int) []Value {
	for _, it := range e.items[1:] {
		if c := it.Expr(); c != nil && depth > 0 && Equal(c.Head(), head) {
			dst = appendFlattened(dst, c, head, depth-1)
			continue
		}
		dst = append(dst, it.Clone())
	}
	return dst
}

// SpliceSequences replaces every argument of the form seq(a, b, ...) by
// a, b, .... It consumes v.
func SpliceSequences(v Value, seq *Symbol) Value {
	e := v.Expr()
	if e == nil {
		return v
	}
	found := false
	for _, it := range e.items[1:] {
		if it.HasHead(seq, -1) {
			found = true
			break
		}
	}
	if !found {
		return v
	}
	items := make([]Value, 1, len(e.items))
	items[0] = e.items[0].Clone()
	for _, it := range e.items[1:] {
		if c := it.Expr(); c != nil && it.HasHead(seq, -1) {
			for _, sub := range c.items[1:] {
				items = append(items, sub.Clone())
			}
			continue
		}
		items = append(items, it.Clone())
	}
	h := e.heap
	v.Release()
	return h.exprFromItems(items)
}

// SortArgs puts the arguments into canonical order (see Compare). It
// consumes v and returns v unchanged when the arguments are already sorted.
func SortArgs(v Value) Value {
	e := v.Expr()
	if e == nil {
		return v
	}
	args := e.items[1:]
	if slices.IsSortedFunc(args, compareValues) {
		return v
	}
	if v.Unique() {
		slices.SortStableFunc(args, compareValues)
		e.touch()
		return v
	}
	items := e.cloneItems()
	slices.SortStableFunc(items[1:], compareValues)
	h := e.heap
	v.Release()
	return h.exprFromItems(items)
}

func compareValues(a, b Value) int { return Compare(a.Ref, b.Ref) }
