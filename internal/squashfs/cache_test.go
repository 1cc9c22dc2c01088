package squashfs

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestLRUCache_Basic(t *testing.T) {
	cache := newLRUCache[string](3)

	cache.Put(0, "block0")
	cache.Put(8194, "block1")
	cache.Put(16388, "block2")

	for key, want := range map[int64]string{0: "block0", 8194: "block1", 16388: "block2"} {
		got, ok := cache.Get(key)
		assert.Assert(t, ok, "key %d", key)
		assert.Equal(t, got, want)
	}
}

func TestLRUCache_LRUOrder(t *testing.T) {
	cache := newLRUCache[int](3)
	cache.Put(1, 1)
	cache.Put(2, 2)
	cache.Put(3, 3)

	// 1 becomes most recently used, so 2 is evicted next.
	cache.Get(1)
	cache.Put(4, 4)

	_, ok := cache.Get(2)
	assert.Assert(t, !ok, "expected 2 to be evicted")
	_, ok = cache.Get(1)
	assert.Assert(t, ok, "expected 1 to be present")
	assert.Equal(t, cache.Len(), 3)
}

func TestLRUCache_Update(t *testing.T) {
	cache := newLRUCache[string](3)
	cache.Put(7, "old")
	cache.Put(7, "new")

	got, ok := cache.Get(7)
	assert.Assert(t, ok)
	assert.Equal(t, got, "new")
	assert.Equal(t, cache.Len(), 1)
}

func TestLRUCache_Disabled(t *testing.T) {
	cache := newLRUCache[string](0)
	cache.Put(1, "x")

	_, ok := cache.Get(1)
	assert.Assert(t, !ok)
	assert.Equal(t, cache.Len(), 0)
}

func TestLRUCache_Stats(t *testing.T) {
	cache := newLRUCache[int](2)
	cache.Put(1, 1)
	cache.Put(2, 2)
	cache.Get(1)
	cache.Get(1)
	cache.Get(9)
	cache.Put(3, 3)

	stats := cache.Stats()
	assert.Equal(t, stats.Size, 2)
	assert.Equal(t, stats.MaxSize, 2)
	assert.Equal(t, stats.Hits, uint64(2))
	assert.Equal(t, stats.Misses, uint64(1))
	assert.Equal(t, stats.Evictions, uint64(1))
	assert.Equal(t, stats.HitRate, float64(2)/3)
}

func TestLRUCache_Concurrent(t *testing.T) {
	cache := newLRUCache[int64](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := int64((g*500 + i) % 128)
				cache.Put(key, key)
				if v, ok := cache.Get(key); ok && v != key {
					t.Errorf("Get(%d) = %d", key, v)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Assert(t, cache.Len() <= 64)
}
