package vm

import (
	"math"
	"math/big"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Heap objects and reference counting
// ---------------------------------------------------------------------------

// object is implemented by every heap-allocated value.
type object interface {
	hdr() *header
	// drop releases the object's owned children. Children whose count
	// reaches zero are appended to stack instead of being destroyed
	// recursively.
	drop(stack []object) []object
}

// keeper is implemented by objects that may veto their own destruction
// when the last reference goes away. keep may hand back another object
// whose destruction is now due.
type keeper interface {
	keep() (keep bool, due object)
}

type header struct {
	refs     atomic.Int32
	heap     *Heap
	immortal bool
}

func (h *header) hdr() *header { return h }

func (h *header) retain() {
	if !h.immortal {
		h.refs.Add(1)
	}
}

// Refs returns the current reference count. It is a snapshot and only
// meaningful to a caller that owns one of the references.
func (h *header) Refs() int32 { return h.refs.Load() }

func release(o object) {
	hd := o.hdr()
	if hd.immortal {
		return
	}
	n := hd.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("vm: release of a dead object")
	}
	destroy(o)
}

// destroy tears down o and everything that becomes unreachable with it,
// using an explicit work-list so deep trees do not grow the Go stack.
func destroy(o object) {
	stack := make([]object, 1, 16)
	stack[0] = o
	for len(stack) > 0 {
		o = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if k, ok := o.(keeper); ok {
			keep, due := k.keep()
			if due != nil {
				stack = append(stack, due)
			}
			if keep {
				continue
			}
		}

		stack = o.drop(stack)
		if h := o.hdr().heap; h != nil {
			h.live.Add(-1)
		}
	}
}

// dropChild releases a child reference held by an object being destroyed.
func dropChild(v Value, stack []object) []object {
	if v.obj == nil {
		return stack
	}
	hd := v.obj.hdr()
	if hd.immortal {
		return stack
	}
	if hd.refs.Add(-1) == 0 {
		stack = append(stack, v.obj)
	}
	return stack
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Heap accounts for the objects of one runtime and owns its change timer.
type Heap struct {
	live  atomic.Int64
	timer atomic.Int64
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Live returns the number of heap objects created and not yet destroyed.
// Immortal objects (symbols) are not counted.
func (h *Heap) Live() int64 {
	return h.live.Load()
}

// Now returns the current change time.
func (h *Heap) Now() int64 {
	return h.timer.Load()
}

// Tick advances the change timer and returns the new time.
func (h *Heap) Tick() int64 {
	return h.timer.Add(1)
}

func (h *Heap) track(hd *header) {
	hd.heap = h
	hd.refs.Store(1)
	h.live.Add(1)
}

// ---------------------------------------------------------------------------
// Strings and boxed numbers
// ---------------------------------------------------------------------------

// String is an immutable heap string.
type String struct {
	header
	s string
}

func (s *String) drop(stack []object) []object { return stack }

// Number is a boxed integer outside the inline 32-bit range. Its contents
// never change after construction.
type Number struct {
	header
	n *big.Int
}

func (n *Number) drop(stack []object) []object { return stack }

// NewString allocates a string value.
func (h *Heap) NewString(s string) Value {
	o := &String{s: s}
	h.track(&o.header)
	return Value{Ref{kind: KindString, obj: o}}
}

// NewInteger returns x as a value, inline when it fits in 32 bits. x is
// not retained.
func (h *Heap) NewInteger(x *big.Int) Value {
	if x.IsInt64() {
		if n := x.Int64(); n >= math.MinInt32 && n <= math.MaxInt32 {
			return Int(int32(n))
		}
	}
	o := &Number{n: new(big.Int).Set(x)}
	h.track(&o.header)
	return Value{Ref{kind: KindNumber, obj: o}}
}

// NewInt64 returns n as a value, inline when it fits in 32 bits.
func (h *Heap) NewInt64(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Int(int32(n))
	}
	return h.NewInteger(big.NewInt(n))
}
