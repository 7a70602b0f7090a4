package vm

import (
	"errors"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"github.com/tliron/commonlog"

	"github.com/chazu/pmeval/hashtable"
)

// ---------------------------------------------------------------------------
// DispatchCache: process-wide cache of dispatch tables
// ---------------------------------------------------------------------------

// DefaultLimboSize is the number of unreferenced tables kept for reuse.
const DefaultLimboSize = 8

// cacheKey finds a table either by its key list or by identity.
type cacheKey struct {
	hash  uint64
	keys  Ref
	table *DispatchTable
}

type cacheStrategy struct{}

func (cacheStrategy) EntryHash(dt *DispatchTable) uint64 { return dt.hash }
func (cacheStrategy) KeyHash(k cacheKey) uint64          { return k.hash }
func (cacheStrategy) EntriesEqual(a, b *DispatchTable) bool {
	return a == b || (a.hash == b.hash && Equal(a.keys.Ref, b.keys.Ref))
}
func (cacheStrategy) EntryEqualsKey(dt *DispatchTable, k cacheKey) bool {
	if k.table != nil {
		return dt == k.table
	}
	return dt.hash == k.hash && Equal(dt.keys.Ref, k.keys)
}

// DispatchCache shares dispatch tables between structurally equal rule
// lists. A table whose last reference goes away is parked in a small limbo
// ring instead of being destroyed, so that rule lists rebuilt in quick
// succession find it again. The cache itself holds no counted references.
type DispatchCache struct {
	heap     *Heap
	isConst  func(Ref) bool
	maxRules int
	log      commonlog.Logger

	mu        deadlock.Mutex
	tables    *hashtable.Table[*DispatchTable, cacheKey]
	limbo     []*DispatchTable
	limboSize int
	epoch     uint64

	hits   atomic.Uint64
	misses atomic.Uint64
	builds atomic.Uint64
}

// NewDispatchCache creates a cache building tables on heap. isConst
// classifies literal keys.
func NewDispatchCache(heap *Heap, isConst func(Ref) bool, limboSize, maxRules int) *DispatchCache {
	if limboSize < 0 {
		limboSize = 0
	}
	return &DispatchCache{
		heap:      heap,
		isConst:   isConst,
		maxRules:  maxRules,
		log:       commonlog.GetLogger("pmeval.dispatch"),
		tables:    hashtable.New[*DispatchTable, cacheKey](cacheStrategy{}, 0),
		limbo:     make([]*DispatchTable, 0, limboSize),
		limboSize: limboSize,
	}
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Tables int
	Limbo  int
	Hits   uint64
	Misses uint64
	Builds uint64
}

// Stats returns the current counters.
func (c *DispatchCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Tables: c.tables.Len(),
		Limbo:  len(c.limbo),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Builds: c.builds.Load(),
	}
}

// ForRules returns a reference to the dispatch table for a rule list
// (a List of Rule / RuleDelayed expressions). It reports false when no
// table can be built; the caller then treats the list as unindexed.
func (c *DispatchCache) ForRules(rules Ref) (Value, bool) {
	e := rules.Expr()
	if e == nil {
		return Null, false
	}
	if dt := e.attached.Load(); dt != nil {
		// the list holds a reference, so the table is alive
		c.hits.Add(1)
		return dt.value().Clone(), true
	}

	items := make([]Value, len(e.items))
	items[0] = e.items[0].Clone()
	for i := 1; i < len(e.items); i++ {
		items[i] = ruleLHS(e.items[i].Ref).Clone()
	}
	keys := c.heap.exprFromItems(items)

	table, ok := c.ForKeys(keys)
	if ok {
		attach(e, table.Dispatch())
	}
	return table, ok
}

// ForKeys returns a reference to the dispatch table for a list of
// left-hand sides, consuming keys.
func (c *DispatchCache) ForKeys(keys Value) (Value, bool) {
	key := cacheKey{hash: Hash(keys.Ref), keys: keys.Ref}

	c.mu.Lock()
	if dt, ok := c.revive(key); ok {
		c.mu.Unlock()
		c.hits.Add(1)
		keys.Release()
		return dt.value(), true
	}
	c.mu.Unlock()
	c.misses.Add(1)

	built, err := c.heap.BuildDispatchTable(keys, c.isConst, c.maxRules)
	if err != nil {
		c.log.Warningf("no dispatch table: %s", err)
		return Null, false
	}
	c.builds.Add(1)
	dt := built.Dispatch()

	c.mu.Lock()
	if other, ok := c.revive(cacheKey{hash: dt.hash, keys: dt.keys.Ref}); ok {
		// another goroutine built the same table first
		c.mu.Unlock()
		built.Release()
		return other.value(), true
	}
	dt.cache = c
	var victims []*DispatchTable
	_, _, err = c.tables.Insert(dt)
	if errors.Is(err, hashtable.ErrCapacity) {
		victims = c.takeLimbo(false)
		_, _, err = c.tables.Insert(dt)
	}
	if err != nil {
		dt.cache = nil
	}
	c.mu.Unlock()

	c.destroyAll(victims)
	if err != nil {
		c.log.Warningf("dispatch table left uncached: %s", err)
	}
	return built, true
}

// revive finds a cached table and takes a reference to it, pulling it out
// of limbo if needed. Caller holds c.mu.
func (c *DispatchCache) revive(key cacheKey) (*DispatchTable, bool) {
	dt, ok := c.tables.Search(key)
	if !ok {
		return nil, false
	}
	if dt.refs.Add(1) == 1 && dt.inLimbo {
		c.removeFromLimbo(dt)
	}
	return dt, true
}

func (c *DispatchCache) removeFromLimbo(dt *DispatchTable) {
	for i, t := range c.limbo {
		if t == dt {
			last := len(c.limbo) - 1
			c.limbo[i] = c.limbo[last]
			c.limbo[last] = nil
			c.limbo = c.limbo[:last]
			break
		}
	}
	dt.inLimbo = false
}

// keep decides the fate of a table whose count reached zero. It returns
// true to keep the table alive in limbo, and possibly the table evicted
// from limbo to make room.
func (c *DispatchCache) keep(dt *DispatchTable) (bool, object) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case dt.buried:
		return false, nil
	case dt.refs.Load() > 0:
		// revived between the final release and now
		return true, nil
	case dt.inLimbo:
		return true, nil
	}

	if _, ok := c.tables.Search(cacheKey{hash: dt.hash, table: dt}); !ok {
		if other, stale := c.tables.Search(cacheKey{hash: dt.hash, keys: dt.keys.Ref}); stale {
			c.log.Warningf("dispatch cache contains %p instead of %p", other, dt)
		}
		return false, nil
	}

	if c.limboSize == 0 {
		c.unsafeEvict(dt)
		return false, nil
	}

	var victim *DispatchTable
	if len(c.limbo) == c.limboSize {
		victim = c.limbo[0]
		copy(c.limbo, c.limbo[1:])
		c.limbo = c.limbo[:len(c.limbo)-1]
		victim.inLimbo = false
		c.unsafeEvict(victim)
	}
	dt.inLimbo = true
	dt.epoch = c.epoch
	c.limbo = append(c.limbo, dt)

	if victim != nil {
		return true, victim
	}
	return true, nil
}

// unsafeEvict removes dt from the cache and marks it for destruction.
// Caller holds c.mu.
func (c *DispatchCache) unsafeEvict(dt *DispatchTable) {
	if _, ok := c.tables.Remove(cacheKey{hash: dt.hash, table: dt}); !ok {
		c.log.Warningf("dispatch table %p missing from cache on eviction", dt)
	}
	dt.buried = true
}

// takeLimbo empties limbo, or with olderOnly only the tables that were
// already there at the previous sweep, and returns the tables to destroy.
// Caller holds c.mu.
func (c *DispatchCache) takeLimbo(olderOnly bool) []*DispatchTable {
	var victims []*DispatchTable
	kept := c.limbo[:0]
	for _, dt := range c.limbo {
		if olderOnly && dt.epoch == c.epoch {
			kept = append(kept, dt)
			continue
		}
		dt.inLimbo = false
		c.unsafeEvict(dt)
		victims = append(victims, dt)
	}
	for i := len(kept); i < len(c.limbo); i++ {
		c.limbo[i] = nil
	}
	c.limbo = kept
	return victims
}

func (c *DispatchCache) destroyAll(victims []*DispatchTable) {
	for _, dt := range victims {
		destroy(dt)
	}
}

// FlushLimbo destroys every table waiting in limbo and returns how many
// were destroyed.
func (c *DispatchCache) FlushLimbo() int {
	c.mu.Lock()
	victims := c.takeLimbo(false)
	c.mu.Unlock()
	c.destroyAll(victims)
	return len(victims)
}

// sweepLimbo destroys tables that have sat in limbo since the previous
// sweep and starts a new sweep epoch.
func (c *DispatchCache) sweepLimbo() int {
	c.mu.Lock()
	victims := c.takeLimbo(true)
	c.epoch++
	c.mu.Unlock()
	c.destroyAll(victims)
	return len(victims)
}

// attach stores a reference to dt on the rule list e unless one is
// already attached.
func attach(e *Expr, dt *DispatchTable) {
	ref := dt.value().Clone()
	if !e.attached.CompareAndSwap(nil, dt) {
		ref.Release()
	}
}
