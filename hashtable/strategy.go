package hashtable

import "github.com/zeebo/xxh3"

// Funcs adapts four plain functions to a Strategy.
type Funcs[E any, K any] struct {
	Hash      func(E) uint64
	Equal     func(a, b E) bool
	HashKey   func(K) uint64
	EqualsKey func(E, K) bool
}

func (f Funcs[E, K]) EntryHash(e E) uint64         { return f.Hash(e) }
func (f Funcs[E, K]) EntriesEqual(a, b E) bool     { return f.Equal(a, b) }
func (f Funcs[E, K]) KeyHash(k K) uint64           { return f.HashKey(k) }
func (f Funcs[E, K]) EntryEqualsKey(e E, k K) bool { return f.EqualsKey(e, k) }

// Keyed is an entry that carries its own string key.
type Keyed interface {
	Key() string
}

// StringKeys is a Strategy for entries looked up by their string key.
type StringKeys[E Keyed] struct{}

func (StringKeys[E]) EntryHash(e E) uint64              { return xxh3.HashString(e.Key()) }
func (StringKeys[E]) EntriesEqual(a, b E) bool          { return a.Key() == b.Key() }
func (StringKeys[E]) KeyHash(k string) uint64           { return xxh3.HashString(k) }
func (StringKeys[E]) EntryEqualsKey(e E, k string) bool { return e.Key() == k }
