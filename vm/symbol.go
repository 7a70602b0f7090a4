package vm

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// RuleKind selects one of a symbol's rule stores.
type RuleKind int

const (
	// DownRules apply when the symbol is the head of the expression.
	DownRules RuleKind = iota
	// UpRules apply when the symbol heads an argument of the expression.
	UpRules
	// SubRules apply when the symbol is the topmost head under another head,
	// as in f(1)(2).
	SubRules
	numRuleKinds
)

func (k RuleKind) String() string {
	switch k {
	case DownRules:
		return "DownRules"
	case UpRules:
		return "UpRules"
	case SubRules:
		return "SubRules"
	}
	return "RuleKind(?)"
}

// HookKind selects one of a symbol's builtin code slots.
type HookKind int

const (
	EarlyCode HookKind = iota
	UpCode
	DownCode
	SubCode
	numHookKinds
)

// Hook is builtin code attached to a symbol. It receives the expression by
// ownership transfer and returns either that same expression unchanged,
// meaning it does not apply, or the value that replaces it.
type Hook func(ev *Evaluator, th *Thread, expr Value) Value

// Symbol is a named, process-wide value with attributes, an own value and
// rule stores. Symbols are never destroyed while their table lives.
type Symbol struct {
	header
	name string
	hash uint64

	attrs      atomic.Uint32
	lastChange atomic.Int64

	mu    sync.RWMutex
	value Value
	hooks [numHookKinds]Hook

	rules [numRuleKinds]RuleStore
}

func (s *Symbol) drop(stack []object) []object { return stack }

// Name returns the symbol's name.
func (s *Symbol) Name() string { return s.name }

func (s *Symbol) String() string { return s.name }

// Value returns the symbol as a value. Symbols are immortal, so the result
// need not be released, but releasing it is harmless.
func (s *Symbol) Value() Value { return Value{Ref{kind: KindSymbol, obj: s}} }

// Ref returns the symbol as a borrowed value.
func (s *Symbol) Ref() Ref { return Ref{kind: KindSymbol, obj: s} }

// Attributes returns the current attribute set.
func (s *Symbol) Attributes() Attributes { return Attributes(s.attrs.Load()) }

// SetAttributes replaces the attribute set.
func (s *Symbol) SetAttributes(a Attributes) {
	s.attrs.Store(uint32(a))
	s.touch()
}

// AddAttributes sets additional flags.
func (s *Symbol) AddAttributes(a Attributes) {
	for {
		old := s.attrs.Load()
		if s.attrs.CompareAndSwap(old, old|uint32(a)) {
			break
		}
	}
	s.touch()
}

// LastChange returns the change time of the symbol's last modification.
func (s *Symbol) LastChange() int64 { return s.lastChange.Load() }

func (s *Symbol) touch() {
	s.lastChange.Store(s.heap.Tick())
}

// OwnValue returns a new reference to the global value, or Undefined.
func (s *Symbol) OwnValue() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value.Clone()
}

// SetOwnValue replaces the global value, consuming v. Undefined clears it.
func (s *Symbol) SetOwnValue(v Value) {
	s.mu.Lock()
	old := s.value
	s.value = v
	s.mu.Unlock()
	s.touch()
	old.Release()
}

// Rules returns one of the symbol's rule stores.
func (s *Symbol) Rules(kind RuleKind) *RuleStore {
	return &s.rules[kind]
}

// Hook returns the builtin code registered for kind, or nil.
func (s *Symbol) Hook(kind HookKind) Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks[kind]
}

// SetHook registers builtin code.
func (s *Symbol) SetHook(kind HookKind, h Hook) {
	s.mu.Lock()
	s.hooks[kind] = h
	s.mu.Unlock()
	s.touch()
}

// Clear removes the own value, all rules and all attributes. Hooks stay.
func (s *Symbol) Clear() {
	s.SetOwnValue(Undefined())
	for k := range s.rules {
		s.rules[k].clear()
	}
	s.SetAttributes(0)
}

// ---------------------------------------------------------------------------
// SymbolTable: interned symbols
// ---------------------------------------------------------------------------

// SymbolTable interns symbols by name.
type SymbolTable struct {
	heap   *Heap
	mu     sync.RWMutex
	byName map[string]*Symbol
	all    []*Symbol // creation order
}

// NewSymbolTable creates an empty table whose symbols stamp changes on heap.
func NewSymbolTable(heap *Heap) *SymbolTable {
	return &SymbolTable{
		heap:   heap,
		byName: make(map[string]*Symbol),
		all:    make([]*Symbol, 0, 256),
	}
}

// Intern returns the symbol with the given name, creating it if needed.
func (st *SymbolTable) Intern(name string) *Symbol {
	// Fast path: read-only lookup
	st.mu.RLock()
	if s, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return s
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := st.byName[name]; ok {
		return s
	}

	s := &Symbol{
		name:  name,
		hash:  xxh3.HashString(name),
		value: Undefined(),
	}
	s.header.heap = st.heap
	s.header.immortal = true
	for k := range s.rules {
		s.rules[k].owner = s
		s.rules[k].kind = RuleKind(k)
	}
	st.byName[name] = s
	st.all = append(st.all, s)
	return s
}

// Lookup returns the symbol with the given name if it exists.
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byName[name]
	return s, ok
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.all)
}

// All returns all symbols in creation order.
func (st *SymbolTable) All() []*Symbol {
	st.mu.RLock()
	defer st.mu.RUnlock()
	result := make([]*Symbol, len(st.all))
	copy(result, st.all)
	return result
}
