package cache

import "sync"

// Cache is a thread-safe LRU cache whose values have a cost, typically
// their size in bytes. When the total cost exceeds the limit the least
// recently used entries are evicted.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	cost    func(V) int64
	limit   int64
	total   int64

	hits, misses, evictions uint64
}

// New creates a cache holding values up to a total cost of limit. A limit
// of 0 means unlimited. cost may be nil, in which case every value costs 1.
func New[K comparable, V any](limit int64, cost func(V) int64) *Cache[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		cost:    cost,
		limit:   limit,
	}
}

// Get returns the value stored under key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(n)
	return n.value, true
}

// Set stores value under key. A value costing more than the limit is not
// stored.
func (c *Cache[K, V]) Set(key K, value V) {
	cost := c.cost(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[key]; ok {
		c.remove(n)
	}
	if c.limit > 0 && cost > c.limit {
		return
	}
	n := &lruNode[K, V]{key: key, value: value, cost: cost}
	c.entries[key] = n
	c.order.pushFront(n)
	c.total += cost

	for c.limit > 0 && c.total > c.limit {
		c.remove(c.order.tail)
		c.evictions++
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if ok {
		c.remove(n)
	}
	return ok
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*lruNode[K, V])
	c.order = lruList[K, V]{}
	c.total = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Len:       len(c.entries),
		Cost:      c.total,
		Limit:     c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if n := c.hits + c.misses; n > 0 {
		st.HitRate = float64(c.hits) / float64(n)
	}
	return st
}

// remove drops n. Caller must hold c.mu.
func (c *Cache[K, V]) remove(n *lruNode[K, V]) {
	c.order.unlink(n)
	delete(c.entries, n.key)
	c.total -= n.cost
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Cost is the summed cost of all entries.
	Cost int64
	// Limit is the cost limit, 0 if unlimited.
	Limit int64
	// Hits and Misses count Get calls.
	Hits   uint64
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
	// Evictions counts entries removed to stay under Limit.
	Evictions uint64
}
