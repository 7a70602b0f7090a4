// Package hashtable implements an open-addressing hash table whose hashing
// and equality are supplied by a Strategy.
//
// A Strategy distinguishes between the stored entry type E and a lookup key
// type K, so entries can be found by a lighter-weight key than the entry
// itself. Deleted slots are marked with tombstones so that probe sequences
// stay intact after removal.
package hashtable

import (
	"errors"
	"iter"
)

// MinCapacity is the smallest number of slots a table ever has.
const MinCapacity = 8

// DefaultMaxCapacity bounds growth unless a table is given its own limit.
const DefaultMaxCapacity = 1 << 30

// ErrCapacity is returned by Insert when growing the table would exceed its
// capacity limit. The table is unchanged when this error is returned.
var ErrCapacity = errors.New("hashtable: capacity limit reached")

// Strategy supplies hashing and equality for a Table.
//
// EntryHash and KeyHash must agree: an entry e and a key k for which
// EntryEqualsKey(e, k) holds must hash to the same value.
type Strategy[E any, K any] interface {
	EntryHash(e E) uint64
	EntriesEqual(a, b E) bool
	KeyHash(k K) uint64
	EntryEqualsKey(e E, k K) bool
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotUsed
	slotDeleted
)

type slot[E any] struct {
	state slotState
	entry E
}

// Table is an open-addressing hash table. It is not safe for concurrent
// mutation; callers provide their own locking.
type Table[E any, K any] struct {
	strategy    Strategy[E, K]
	slots       []slot[E]
	used        int // live entries
	nonEmpty    int // live entries + tombstones
	maxCapacity int
}

// New creates a table sized to hold at least minUsed entries without growing.
func New[E any, K any](strategy Strategy[E, K], minUsed int) *Table[E, K] {
	t := &Table[E, K]{
		strategy:    strategy,
		maxCapacity: DefaultMaxCapacity,
	}
	t.slots = make([]slot[E], capacityFor(minUsed))
	return t
}

// SetMaxCapacity limits the number of slots the table may grow to.
func (t *Table[E, K]) SetMaxCapacity(n int) {
	if n < MinCapacity {
		n = MinCapacity
	}
	t.maxCapacity = n
}

// Len returns the number of live entries.
func (t *Table[E, K]) Len() int {
	return t.used
}

// Capacity returns the number of slots.
func (t *Table[E, K]) Capacity() int {
	return len(t.slots)
}

// capacityFor returns the smallest power of two (at least MinCapacity) that
// keeps n entries at or below a 2/3 load factor.
func capacityFor(n int) int {
	c := MinCapacity
	for c*2 < n*3 {
		c <<= 1
	}
	return c
}

// probe walks the probe sequence for hash h. It returns the index of the
// slot holding a matching entry, or the slot where a new entry should go
// (the first tombstone seen, else the terminating empty slot).
func (t *Table[E, K]) probe(h uint64, matches func(E) bool) (index int, found bool) {
	mask := uint64(len(t.slots) - 1)
	i := h & mask
	free := -1
	for {
		s := &t.slots[i]
		switch s.state {
		case slotEmpty:
			if free >= 0 {
				return free, false
			}
			return int(i), false
		case slotDeleted:
			if free < 0 {
				free = int(i)
			}
		case slotUsed:
			if matches(s.entry) {
				return int(i), true
			}
		}
		i = (5*i + 1 + h) & mask
		h >>= 5
	}
}

// Search finds the entry equal to key.
func (t *Table[E, K]) Search(key K) (E, bool) {
	var zero E
	if t.used == 0 {
		return zero, false
	}
	i, found := t.probe(t.strategy.KeyHash(key), func(e E) bool {
		return t.strategy.EntryEqualsKey(e, key)
	})
	if !found {
		return zero, false
	}
	return t.slots[i].entry, true
}

// Insert stores entry. If an entry with an equal key was present it is
// replaced and returned with replaced == true; disposing of it is the
// caller's responsibility.
func (t *Table[E, K]) Insert(entry E) (old E, replaced bool, err error) {
	h := t.strategy.EntryHash(entry)
	matches := func(e E) bool { return t.strategy.EntriesEqual(e, entry) }

	i, found := t.probe(h, matches)
	if found {
		old = t.slots[i].entry
		t.slots[i].entry = entry
		return old, true, nil
	}

	if t.slots[i].state == slotEmpty && (t.nonEmpty+1)*3 > len(t.slots)*2 {
		if err := t.resize(t.used + 1); err != nil {
			return old, false, err
		}
		i, _ = t.probe(h, matches)
	}

	if t.slots[i].state == slotEmpty {
		t.nonEmpty++
	}
	t.slots[i] = slot[E]{state: slotUsed, entry: entry}
	t.used++
	return old, false, nil
}

// Remove deletes and returns the entry equal to key.
func (t *Table[E, K]) Remove(key K) (E, bool) {
	var zero E
	if t.used == 0 {
		return zero, false
	}
	i, found := t.probe(t.strategy.KeyHash(key), func(e E) bool {
		return t.strategy.EntryEqualsKey(e, key)
	})
	if !found {
		return zero, false
	}
	e := t.slots[i].entry
	t.slots[i] = slot[E]{state: slotDeleted}
	t.used--
	return e, true
}

// resize rehashes into a table sized for minUsed entries. Tombstones are
// dropped. On failure the table keeps its previous slots.
func (t *Table[E, K]) resize(minUsed int) error {
	newCap := capacityFor(minUsed)
	if newCap < len(t.slots) && t.nonEmpty > t.used {
		// only tombstones pushed us over; rehash in place
		newCap = len(t.slots)
	}
	if newCap > t.maxCapacity {
		return ErrCapacity
	}

	old := t.slots
	t.slots = make([]slot[E], newCap)
	t.nonEmpty = 0
	for _, s := range old {
		if s.state != slotUsed {
			continue
		}
		i, _ := t.probe(t.strategy.EntryHash(s.entry), func(E) bool { return false })
		t.slots[i] = slot[E]{state: slotUsed, entry: s.entry}
		t.nonEmpty++
	}
	return nil
}

// All iterates over the live entries in slot order.
func (t *Table[E, K]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		for _, s := range t.slots {
			if s.state == slotUsed {
				if !yield(s.entry) {
					return
				}
			}
		}
	}
}

// Clear removes all entries and shrinks the table to its minimum size.
func (t *Table[E, K]) Clear() {
	t.slots = make([]slot[E], MinCapacity)
	t.used = 0
	t.nonEmpty = 0
}
