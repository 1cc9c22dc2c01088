package squashfs

import (
	"container/list"
	"sync"
)

// lruCache is a thread-safe LRU of decoded blocks keyed by their
// absolute position in the image. Images are immutable, so entries
// never expire; they are only evicted when the cache is full.
type lruCache[V any] struct {
	mu        sync.Mutex
	maxSize   int
	items     map[int64]*list.Element
	lruList   *list.List
	hits      uint64
	misses    uint64
	evictions uint64
}

type lruEntry[V any] struct {
	key   int64
	value V
}

// newLRUCache creates a cache holding at most maxSize entries. A
// maxSize of 0 or less disables caching entirely.
func newLRUCache[V any](maxSize int) *lruCache[V] {
	return &lruCache[V]{
		maxSize: maxSize,
		items:   make(map[int64]*list.Element),
		lruList: list.New(),
	}
}

// Get returns the value stored at key and marks it most recently used.
func (c *lruCache[V]) Get(key int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.lruList.MoveToFront(elem)
	c.hits++
	return elem.Value.(*lruEntry[V]).value, true
}

// Put stores value at key, evicting the least recently used entry when
// the cache is full.
func (c *lruCache[V]) Put(key int64, value V) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		c.lruList.MoveToFront(elem)
		return
	}

	c.items[key] = c.lruList.PushFront(&lruEntry[V]{key: key, value: value})
	if c.lruList.Len() > c.maxSize {
		c.evictOldest()
	}
}

// Len returns the number of cached entries.
func (c *lruCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns cache counters.
func (c *lruCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:      c.lruList.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

// evictOldest removes the least recently used entry (assumes lock is held)
func (c *lruCache[V]) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry[V]).key)
	c.evictions++
}

// CacheStats contains cache performance statistics
type CacheStats struct {
	Size      int     // Current number of entries
	MaxSize   int     // Maximum number of entries
	Hits      uint64  // Number of cache hits
	Misses    uint64  // Number of cache misses
	Evictions uint64  // Number of evictions
	HitRate   float64 // Hit rate (hits / (hits + misses))
}
