package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/pmeval/hashtable"
)

// ---------------------------------------------------------------------------
// DispatchTable: indexed lookup over a rule list's left-hand sides
// ---------------------------------------------------------------------------

// DefaultMaxRules bounds the number of keys a dispatch table indexes.
const DefaultMaxRules = 1 << 30

// ErrTooManyRules is returned by BuildDispatchTable when the key count
// exceeds the configured ceiling.
var ErrTooManyRules = errors.New("dispatch table: too many rules")

// SliceKind tells literal runs from pattern entries.
type SliceKind uint8

const (
	// LiteralRun is a maximal run of consecutive constant keys.
	LiteralRun SliceKind = iota
	// PatternEntry is a single key that must be tried by pattern matching.
	PatternEntry
)

func (k SliceKind) String() string {
	if k == LiteralRun {
		return "LiteralRun"
	}
	return "PatternEntry"
}

// Slice is a contiguous range [Start, End) of 1-based key positions.
type Slice struct {
	Kind  SliceKind
	Start int
	End   int
}

type dispatchEntry struct {
	turn  uint32 // 0 for pattern keys
	slice int32
}

type literalEntry struct {
	hash uint64
	key  Ref
	turn uint32
	pos  int32
}

type literalKey struct {
	hash uint64
	key  Ref
	turn uint32
}

type literalStrategy struct{}

func mixTurn(h uint64, turn uint32) uint64 {
	return (h ^ uint64(turn)) * 0x9e3779b97f4a7c15
}

func (literalStrategy) EntryHash(e literalEntry) uint64 { return mixTurn(e.hash, e.turn) }
func (literalStrategy) KeyHash(k literalKey) uint64     { return mixTurn(k.hash, k.turn) }
func (literalStrategy) EntriesEqual(a, b literalEntry) bool {
	return a.turn == b.turn && Equal(a.key, b.key)
}
func (literalStrategy) EntryEqualsKey(e literalEntry, k literalKey) bool {
	return e.turn == k.turn && Equal(e.key, k.key)
}

// latestTurnStrategy ignores turns, so that a table keyed by it keeps the
// latest turn seen for each distinct key.
type latestTurnStrategy struct{}

func (latestTurnStrategy) EntryHash(e literalEntry) uint64 { return e.hash }
func (latestTurnStrategy) KeyHash(k literalKey) uint64     { return k.hash }
func (latestTurnStrategy) EntriesEqual(a, b literalEntry) bool {
	return Equal(a.key, b.key)
}
func (latestTurnStrategy) EntryEqualsKey(e literalEntry, k literalKey) bool {
	return Equal(e.key, k.key)
}

// DispatchTable indexes the left-hand sides of a rule list. A table never
// changes after it is built, apart from its reference count and its cache
// bookkeeping, so lookups need no locking.
type DispatchTable struct {
	header

	keys     Value // List(lhs...), owned
	hash     uint64
	entries  []dispatchEntry // index 0 unused
	slices   []Slice
	literals *hashtable.Table[literalEntry, literalKey]

	// guarded by cache.mu
	cache   *DispatchCache
	inLimbo bool
	buried  bool
	epoch   uint64
}

func (dt *DispatchTable) value() Value {
	return Value{Ref{kind: KindDispatch, obj: dt}}
}

func (dt *DispatchTable) drop(stack []object) []object {
	stack = dropChild(dt.keys, stack)
	dt.keys = Value{}
	dt.literals = nil
	return stack
}

func (dt *DispatchTable) keep() (bool, object) {
	if dt.cache == nil {
		return false, nil
	}
	return dt.cache.keep(dt)
}

// Len returns the number of keys.
func (dt *DispatchTable) Len() int { return len(dt.entries) - 1 }

// Key returns the left-hand side at 1-based position i.
func (dt *DispatchTable) Key(i int) Ref { return dt.keys.Expr().Item(i) }

// Keys returns the key list.
func (dt *DispatchTable) Keys() Ref { return dt.keys.Ref }

// Slices returns the table's slices in traversal order.
func (dt *DispatchTable) Slices() []Slice {
	out := make([]Slice, len(dt.slices))
	copy(out, dt.slices)
	return out
}

// BuildDispatchTable indexes keys, a List of left-hand sides, consuming it.
// isConst decides which keys are literals. On failure keys is released and
// an error is returned.
func (h *Heap) BuildDispatchTable(keys Value, isConst func(Ref) bool, maxRules int) (Value, error) {
	e := keys.Expr()
	if e == nil {
		keys.Release()
		return Null, fmt.Errorf("dispatch table: key list is not an expression")
	}
	n := e.Len()
	if maxRules <= 0 {
		maxRules = DefaultMaxRules
	}
	if n > maxRules {
		keys.Release()
		return Null, fmt.Errorf("%w: %d > %d", ErrTooManyRules, n, maxRules)
	}

	dt := &DispatchTable{
		keys:    keys,
		hash:    Hash(keys.Ref),
		entries: make([]dispatchEntry, n+1),
	}

	literals := hashtable.New[literalEntry, literalKey](literalStrategy{}, 0)
	turns := hashtable.New[literalEntry, literalKey](latestTurnStrategy{}, 0)
	for i := 1; i <= n; i++ {
		key := e.Item(i)
		if !isConst(key) {
			dt.slices = append(dt.slices, Slice{Kind: PatternEntry, Start: i, End: i + 1})
			dt.entries[i] = dispatchEntry{slice: int32(len(dt.slices) - 1)}
			continue
		}

		if last := len(dt.slices) - 1; last >= 0 && dt.slices[last].Kind == LiteralRun {
			dt.slices[last].End = i + 1
		} else {
			dt.slices = append(dt.slices, Slice{Kind: LiteralRun, Start: i, End: i + 1})
		}

		kh := Hash(key)
		turn := uint32(1)
		if prev, ok := turns.Search(literalKey{hash: kh, key: key}); ok {
			turn = prev.turn + 1
		}
		turns.Insert(literalEntry{hash: kh, key: key, turn: turn})
		if _, _, err := literals.Insert(literalEntry{hash: kh, key: key, turn: turn, pos: int32(i)}); err != nil {
			keys.Release()
			return Null, fmt.Errorf("dispatch table: indexing key %d: %w", i, err)
		}
		dt.entries[i] = dispatchEntry{turn: turn, slice: int32(len(dt.slices) - 1)}
	}
	dt.literals = literals

	h.track(&dt.header)
	return dt.value(), nil
}

// literalPosition returns the position of the turn-th literal key equal to
// probe, or 0.
func (dt *DispatchTable) literalPosition(probe Ref, hash uint64, turn uint32) int {
	if dt.literals.Len() == 0 {
		return 0
	}
	e, ok := dt.literals.Search(literalKey{hash: hash, key: probe, turn: turn})
	if !ok {
		return 0
	}
	return int(e.pos)
}

// Lookup finds the first rule, in list order, whose left-hand side matches
// probe. rules is the rule list the table was built for, or Null; when
// given, the matched rule's right-hand side is passed to m and the
// substituted result returned. The position is 1-based.
func (dt *DispatchTable) Lookup(probe Ref, m Matcher, rules Ref) (int, Value, bool) {
	n := dt.Len()
	hash := Hash(probe)
	pos := 1
	for turn := uint32(1); ; turn++ {
		cand := dt.literalPosition(probe, hash, turn)
		limit := cand
		if cand == 0 {
			limit = n + 1
		}

		for pos < limit {
			s := dt.slices[dt.entries[pos].slice]
			if s.Kind == LiteralRun {
				// constant keys not found by the index cannot match
				pos = s.End
				continue
			}
			if rhs, ok := m.Match(probe, dt.Key(pos), ruleRHSAt(rules, pos)); ok {
				return pos, rhs, true
			}
			pos++
		}

		if cand == 0 {
			return 0, Null, false
		}
		// a literal hit still goes through the matcher for its guard
		if rhs, ok := m.Match(probe, dt.Key(cand), ruleRHSAt(rules, cand)); ok {
			return cand, rhs, true
		}
		pos = cand + 1
	}
}

// LookupForAssignment finds the first key equal to probe.
func (dt *DispatchTable) LookupForAssignment(probe Ref) (int, bool) {
	limit := dt.Len()
	cand := dt.literalPosition(probe, Hash(probe), 1)
	if cand != 0 {
		limit = cand - 1
	}
	for pos := 1; pos <= limit; pos++ {
		if dt.entries[pos].turn == 0 && Equal(dt.Key(pos), probe) {
			return pos, true
		}
	}
	return cand, cand != 0
}

func ruleRHSAt(rules Ref, pos int) Ref {
	if rules.IsNull() {
		return Ref{}
	}
	return ruleRHS(rules.Expr().Item(pos))
}
