package vm

import "math/big"

// ---------------------------------------------------------------------------
// Value representation
// ---------------------------------------------------------------------------

// Kind discriminates the representations a Value can take.
type Kind uint8

const (
	KindNull      Kind = iota // no value
	KindUndefined             // the "unset" sentinel
	KindAbort                 // the abort exception sentinel
	KindInt                   // inline 32-bit integer
	KindSymbol
	KindString
	KindNumber // boxed integer outside the inline range
	KindExpr
	KindDispatch
)

var kindNames = [...]string{
	KindNull:      "Null",
	KindUndefined: "Undefined",
	KindAbort:     "Abort",
	KindInt:       "Int",
	KindSymbol:    "Symbol",
	KindString:    "String",
	KindNumber:    "Number",
	KindExpr:      "Expr",
	KindDispatch:  "DispatchTable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(?)"
}

// Ref is a borrowed view of a value. Holding a Ref does not keep the
// underlying object alive; it is valid only while some owner holds a Value
// for the same object.
type Ref struct {
	kind Kind
	i    int32
	obj  object
}

// Value is an owned handle. Every Value must eventually be passed to a
// consuming function or released with Release. Functions that take a Value
// consume it; functions that take a Ref borrow it.
//
// The zero Value is Null.
type Value struct {
	Ref
}

// Null is the empty value.
var Null = Value{}

// Undefined returns the unset sentinel.
func Undefined() Value { return Value{Ref{kind: KindUndefined}} }

// AbortException returns the sentinel thrown to unwind an aborted
// evaluation.
func AbortException() Value { return Value{Ref{kind: KindAbort}} }

// Int returns an inline integer value.
func Int(n int32) Value { return Value{Ref{kind: KindInt, i: n}} }

// Kind returns the representation kind.
func (r Ref) Kind() Kind { return r.kind }

func (r Ref) IsNull() bool      { return r.kind == KindNull }
func (r Ref) IsUndefined() bool { return r.kind == KindUndefined }
func (r Ref) IsAbort() bool     { return r.kind == KindAbort }
func (r Ref) IsInt() bool       { return r.kind == KindInt }
func (r Ref) IsSymbol() bool    { return r.kind == KindSymbol }
func (r Ref) IsString() bool    { return r.kind == KindString }
func (r Ref) IsNumber() bool    { return r.kind == KindInt || r.kind == KindNumber }
func (r Ref) IsExpr() bool      { return r.kind == KindExpr }
func (r Ref) IsDispatch() bool  { return r.kind == KindDispatch }

// Int returns the inline integer. It panics if r is not KindInt.
func (r Ref) Int() int32 {
	if r.kind != KindInt {
		panic("vm: Int on " + r.kind.String())
	}
	return r.i
}

// Symbol returns the symbol, or nil if r is not a symbol.
func (r Ref) Symbol() *Symbol {
	s, _ := r.obj.(*Symbol)
	return s
}

// Str returns the string contents, or "" if r is not a string.
func (r Ref) Str() string {
	if s, ok := r.obj.(*String); ok {
		return s.s
	}
	return ""
}

// BigInt returns the integer value of a number as a fresh big.Int, or nil
// if r is not a number.
func (r Ref) BigInt() *big.Int {
	switch r.kind {
	case KindInt:
		return big.NewInt(int64(r.i))
	case KindNumber:
		return new(big.Int).Set(r.obj.(*Number).n)
	}
	return nil
}

// Expr returns the expression, or nil if r is not an expression.
func (r Ref) Expr() *Expr {
	e, _ := r.obj.(*Expr)
	return e
}

// Dispatch returns the dispatch table, or nil if r is not one.
func (r Ref) Dispatch() *DispatchTable {
	d, _ := r.obj.(*DispatchTable)
	return d
}

// SameAs reports identity: the same inline value or the same heap object.
func (r Ref) SameAs(other Ref) bool {
	if r.obj != nil || other.obj != nil {
		return r.obj == other.obj
	}
	return r.kind == other.kind && r.i == other.i
}

// Clone returns a new owned reference to the same value.
func (r Ref) Clone() Value {
	if r.obj != nil {
		r.obj.hdr().retain()
	}
	return Value{r}
}

// Release drops the reference. v must not be used afterwards.
func (v Value) Release() {
	if v.obj != nil {
		release(v.obj)
	}
}

// Borrow returns the borrowed view of v.
func (v Value) Borrow() Ref { return v.Ref }

// HeadSymbol returns the symbol at the head of an expression, or nil.
func (r Ref) HeadSymbol() *Symbol {
	if e := r.Expr(); e != nil {
		return e.Head().Symbol()
	}
	return nil
}

// HasHead reports whether r is an expression with the given head symbol
// and, if n >= 0, exactly n arguments.
func (r Ref) HasHead(s *Symbol, n int) bool {
	e := r.Expr()
	if e == nil || e.Head().Symbol() != s {
		return false
	}
	return n < 0 || e.Len() == n
}

// TopmostSymbol follows heads until it reaches a symbol. It returns nil for
// atoms other than symbols.
func (r Ref) TopmostSymbol() *Symbol {
	for {
		switch r.kind {
		case KindSymbol:
			return r.Symbol()
		case KindExpr:
			r = r.Expr().Head()
		default:
			return nil
		}
	}
}
