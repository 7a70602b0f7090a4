package store

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/pmeval/vm"
)

// MaxDepth bounds the nesting of an encoded expression.
const MaxDepth = 16000

var (
	// ErrUnsupported is returned for values that have no wire form
	// (dispatch tables).
	ErrUnsupported = errors.New("value cannot be encoded")
	// ErrMalformed is returned when decoded data is not a valid node tree.
	ErrMalformed = errors.New("malformed expression data")
	// ErrTooDeep is returned for expressions nested deeper than MaxDepth.
	ErrTooDeep = errors.New("expression nested too deeply")
)

// Node is the wire form of a value. Expressions carry their head as the
// first item; numbers outside the inline range travel as decimal text.
type Node struct {
	Kind  vm.Kind `cbor:"1,keyasint"`
	Int   int32   `cbor:"2,keyasint,omitempty"`
	Text  string  `cbor:"3,keyasint,omitempty"`
	Items []Node  `cbor:"4,keyasint,omitempty"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	// every node level is a map holding an array
	dm, err := cbor.DecOptions{MaxNestedLevels: 2*MaxDepth + 4}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Encode serializes v to canonical CBOR. Structurally equal values encode
// to identical bytes.
func Encode(v vm.Ref) ([]byte, error) {
	n, err := ToNode(v)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(n)
}

// Decode deserializes a value, interning its symbols in rt.
func Decode(rt *vm.Runtime, data []byte) (vm.Value, error) {
	var n Node
	if err := cborDecMode.Unmarshal(data, &n); err != nil {
		return vm.Null, fmt.Errorf("store: unmarshal expression: %w", err)
	}
	return FromNode(rt, n)
}

// ToNode converts v to its wire form.
func ToNode(v vm.Ref) (Node, error) {
	return toNode(v, 0)
}

func toNode(r vm.Ref, depth int) (Node, error) {
	if depth > MaxDepth {
		return Node{}, ErrTooDeep
	}
	n := Node{Kind: r.Kind()}
	switch r.Kind() {
	case vm.KindNull, vm.KindUndefined, vm.KindAbort:
	case vm.KindInt:
		n.Int = r.Int()
	case vm.KindNumber:
		n.Text = r.BigInt().String()
	case vm.KindString:
		n.Text = r.Str()
	case vm.KindSymbol:
		n.Text = r.Symbol().Name()
	case vm.KindExpr:
		e := r.Expr()
		n.Items = make([]Node, e.Len()+1)
		for i := range n.Items {
			item, err := toNode(e.Item(i), depth+1)
			if err != nil {
				return Node{}, err
			}
			n.Items[i] = item
		}
	default:
		return Node{}, fmt.Errorf("%w: %s", ErrUnsupported, r.Kind())
	}
	return n, nil
}

// FromNode rebuilds a value from its wire form.
func FromNode(rt *vm.Runtime, n Node) (vm.Value, error) {
	return fromNode(rt, n, 0)
}

func fromNode(rt *vm.Runtime, n Node, depth int) (vm.Value, error) {
	if depth > MaxDepth {
		return vm.Null, ErrTooDeep
	}
	h := rt.Heap()
	switch n.Kind {
	case vm.KindNull:
		return vm.Null, nil
	case vm.KindUndefined:
		return vm.Undefined(), nil
	case vm.KindAbort:
		return vm.AbortException(), nil
	case vm.KindInt:
		return vm.Int(n.Int), nil
	case vm.KindNumber:
		x, ok := new(big.Int).SetString(n.Text, 10)
		if !ok {
			return vm.Null, fmt.Errorf("%w: bad number %q", ErrMalformed, n.Text)
		}
		return h.NewInteger(x), nil
	case vm.KindString:
		return h.NewString(n.Text), nil
	case vm.KindSymbol:
		if n.Text == "" {
			return vm.Null, fmt.Errorf("%w: empty symbol name", ErrMalformed)
		}
		return rt.Symbols.Intern(n.Text).Value(), nil
	case vm.KindExpr:
		if len(n.Items) == 0 {
			return vm.Null, fmt.Errorf("%w: expression without head", ErrMalformed)
		}
		items := make([]vm.Value, 0, len(n.Items))
		for _, it := range n.Items {
			v, err := fromNode(rt, it, depth+1)
			if err != nil {
				for _, done := range items {
					done.Release()
				}
				return vm.Null, err
			}
			items = append(items, v)
		}
		return h.NewExpr(items[0], items[1:]...), nil
	}
	return vm.Null, fmt.Errorf("%w: unknown kind %d", ErrMalformed, n.Kind)
}
