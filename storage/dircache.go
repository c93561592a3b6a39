package storage

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultDirCacheCapacity bounds the number of cached existence checks.
	DefaultDirCacheCapacity = 1000

	// DefaultDirCacheTTL is how long an entry stays valid.
	DefaultDirCacheTTL = 5 * time.Minute
)

// DirCache memoizes directory existence checks so repeated checks against the
// same tenant/category avoid network round-trips during bursty upload
// sequences. It is a thread-safe LRU bounded by capacity; entries past their
// TTL are treated as misses and removed lazily on the next lookup, not swept
// proactively.
type DirCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration

	// items maps cache key → list element (whose value is *dirEntry)
	items map[string]*list.Element
	order *list.List // front = most recently used

	// now is swappable for expiry tests.
	now func() time.Time
}

type dirEntry struct {
	key     string
	exists  bool
	expires time.Time
}

// NewDirCache creates a cache holding at most capacity entries, each valid
// for ttl. Non-positive arguments select the defaults.
func NewDirCache(capacity int, ttl time.Duration) *DirCache {
	if capacity <= 0 {
		capacity = DefaultDirCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultDirCacheTTL
	}
	return &DirCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached existence value for key. The second return is false
// on a miss or when the entry has expired. A hit promotes the entry to most
// recently used.
func (c *DirCache) Get(key string) (exists, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[key]
	if !found {
		return false, false
	}

	entry := elem.Value.(*dirEntry)
	if c.now().After(entry.expires) {
		c.removeLocked(elem)
		return false, false
	}

	c.order.MoveToFront(elem)
	return entry.exists, true
}

// Put records an existence value for key with the cache's default TTL.
func (c *DirCache) Put(key string, exists bool) {
	c.PutTTL(key, exists, c.ttl)
}

// PutTTL records an existence value with an explicit TTL. When the cache is
// at capacity the least-recently-used entry is evicted first.
func (c *DirCache) PutTTL(key string, exists bool, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)

	if elem, found := c.items[key]; found {
		entry := elem.Value.(*dirEntry)
		entry.exists = exists
		entry.expires = expires
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&dirEntry{key: key, exists: exists, expires: expires})
	c.items[key] = elem

	for len(c.items) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}
}

// Invalidate drops the entry for key, forcing a re-check on next lookup.
func (c *DirCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.removeLocked(elem)
	}
}

// Len returns the number of live entries, expired or not.
func (c *DirCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// removeLocked removes a specific element. Caller must hold c.mu.
func (c *DirCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*dirEntry)
	c.order.Remove(elem)
	delete(c.items, entry.key)
}
