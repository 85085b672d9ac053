package engine

import (
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

// CacheEntry is one memoized decision.
type CacheEntry struct {
	Key      string
	Decision *simulation.Decision
	Seq      uint64 // Insertion order
}

// DecisionCache is a bounded FIFO map from context fingerprint to decision.
// Decisions are copied in and out, so callers cannot mutate cached entries.
type DecisionCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*CacheEntry
	order    []string // Keys by insertion, oldest first
	seq      uint64
}

// NewDecisionCache creates a cache holding at most capacity entries.
func NewDecisionCache(capacity int) *DecisionCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &DecisionCache{
		capacity: capacity,
		entries:  make(map[string]*CacheEntry, capacity),
	}
}

// Get returns a copy of the cached decision for key.
func (c *DecisionCache) Get(key string) (*simulation.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.Decision.Clone(), true
}

// Put stores a copy of d. A new key arriving at capacity first evicts the
// oldest ⌈capacity×0.1⌉ entries; an existing key is overwritten in place.
func (c *DecisionCache) Put(key string, d *simulation.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Decision = d.Clone()
		return
	}
	if len(c.entries) >= c.capacity {
		c.evict(evictionCount(c.capacity))
	}

	c.seq++
	c.entries[key] = &CacheEntry{Key: key, Decision: d.Clone(), Seq: c.seq}
	c.order = append(c.order, key)
}

// evict removes the n oldest entries. Caller holds mu.
func (c *DecisionCache) evict(n int) {
	n = min(n, len(c.order))
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append(c.order[:0:0], c.order[n:]...)
}

// evictionCount is ⌈capacity×0.1⌉ in integer arithmetic.
func evictionCount(capacity int) int {
	n := (capacity + 9) / 10
	return max(1, n)
}

// Len returns the number of cached decisions.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured bound.
func (c *DecisionCache) Capacity() int {
	return c.capacity
}
