package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirCache_HitAndMiss(t *testing.T) {
	cache := NewDirCache(10, time.Minute)

	_, ok := cache.Get("acme/images")
	assert.False(t, ok)

	cache.Put("acme/images", true)
	cache.Put("acme/videos", false)

	exists, ok := cache.Get("acme/images")
	assert.True(t, ok)
	assert.True(t, exists)

	exists, ok = cache.Get("acme/videos")
	assert.True(t, ok)
	assert.False(t, exists)
}

func TestDirCache_TTLExpiry(t *testing.T) {
	cache := NewDirCache(10, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("acme/images", true)

	_, ok := cache.Get("acme/images")
	assert.True(t, ok)

	// Entry past its TTL behaves as a miss and is removed lazily.
	now = now.Add(time.Minute + time.Second)
	_, ok = cache.Get("acme/images")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestDirCache_LRUEviction(t *testing.T) {
	cache := NewDirCache(3, time.Minute)

	cache.Put("a", true)
	cache.Put("b", true)
	cache.Put("c", true)

	// Touch "a" so "b" becomes least recently used.
	_, ok := cache.Get("a")
	assert.True(t, ok)

	cache.Put("d", true)
	assert.Equal(t, 3, cache.Len())

	_, ok = cache.Get("b")
	assert.False(t, ok, "least-recently-used entry should have been evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, "key %s should survive eviction", key)
	}
}

func TestDirCache_UpdateExisting(t *testing.T) {
	cache := NewDirCache(2, time.Minute)

	cache.Put("a", false)
	cache.Put("a", true)
	assert.Equal(t, 1, cache.Len())

	exists, ok := cache.Get("a")
	assert.True(t, ok)
	assert.True(t, exists)
}

func TestDirCache_Invalidate(t *testing.T) {
	cache := NewDirCache(10, time.Minute)

	cache.Put("a", true)
	cache.Invalidate("a")

	_, ok := cache.Get("a")
	assert.False(t, ok)

	// Invalidating a missing key is a no-op.
	cache.Invalidate("missing")
}

func TestDirCache_ConcurrentAccess(t *testing.T) {
	cache := NewDirCache(50, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("key-%d", j%100)
				cache.Put(key, j%2 == 0)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 50)
}
