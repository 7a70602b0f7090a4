package vm

import (
	"cmp"
	"encoding/binary"
	"strings"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Structural equality, ordering and hashing
// ---------------------------------------------------------------------------

// Equal reports structural equality. Numbers compare by value, strings by
// contents, symbols and dispatch tables by identity, expressions item by
// item.
func Equal(a, b Ref) bool {
	if a.SameAs(b) {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.Str() == b.Str()
	case KindNumber:
		return a.obj.(*Number).n.Cmp(b.obj.(*Number).n) == 0
	case KindExpr:
		ea, eb := a.Expr(), b.Expr()
		if len(ea.items) != len(eb.items) {
			return false
		}
		for i := range ea.items {
			if !Equal(ea.items[i].Ref, eb.items[i].Ref) {
				return false
			}
		}
		return true
	}
	return false
}

// orderClass ranks kinds for Compare: numbers, strings, symbols,
// expressions, then everything else.
func orderClass(k Kind) int {
	switch k {
	case KindInt, KindNumber:
		return 0
	case KindString:
		return 1
	case KindSymbol:
		return 2
	case KindExpr:
		return 3
	}
	return 4 + int(k)
}

// Compare is a total order on values consistent with Equal. Expressions
// order by length first, then by head, then argument by argument.
func Compare(a, b Ref) int {
	if a.SameAs(b) {
		return 0
	}
	ca, cb := orderClass(a.kind), orderClass(b.kind)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case 0:
		if a.kind == KindInt && b.kind == KindInt {
			return cmp.Compare(a.i, b.i)
		}
		return a.BigInt().Cmp(b.BigInt())
	case 1:
		return strings.Compare(a.Str(), b.Str())
	case 2:
		return strings.Compare(a.Symbol().name, b.Symbol().name)
	case 3:
		ea, eb := a.Expr(), b.Expr()
		if c := cmp.Compare(len(ea.items), len(eb.items)); c != 0 {
			return c
		}
		for i := range ea.items {
			if c := Compare(ea.items[i].Ref, eb.items[i].Ref); c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

// Hash returns a structural hash consistent with Equal.
func Hash(r Ref) uint64 {
	if r.kind == KindSymbol {
		return r.Symbol().hash
	}
	h := xxh3.New()
	writeHash(h, r)
	return h.Sum64()
}

func writeHash(h *xxh3.Hasher, r Ref) {
	var buf [9]byte
	buf[0] = byte(r.kind)
	switch r.kind {
	case KindInt:
		binary.LittleEndian.PutUint32(buf[1:], uint32(r.i))
		h.Write(buf[:5])
	case KindSymbol:
		binary.LittleEndian.PutUint64(buf[1:], r.Symbol().hash)
		h.Write(buf[:])
	case KindString:
		h.Write(buf[:1])
		h.WriteString(r.Str())
	case KindNumber:
		n := r.obj.(*Number).n
		buf[1] = byte(n.Sign() + 1)
		h.Write(buf[:2])
		h.Write(n.Bytes())
	case KindExpr:
		e := r.Expr()
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(e.items)))
		h.Write(buf[:])
		for _, it := range e.items {
			writeHash(h, it.Ref)
		}
	default:
		h.Write(buf[:1])
	}
}
