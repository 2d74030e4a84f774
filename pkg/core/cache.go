package core

import (
	"context"
	"sync"
)

// DefaultCacheCapacity is the number of validated documents kept in memory.
const DefaultCacheCapacity = 64

// Loader fetches and validates a document on a cache miss.
// It returns (nil, nil) when the document does not exist.
type Loader func(ctx context.Context) (*Document, error)

// Cache is a bounded map of validated, immutable documents.
// When full, the oldest inserted entry is evicted first; reads do not refresh an entry.
// Entries are never invalidated because committed documents never change.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]Document
	order    []string // oldest first
	observer Observer
}

// NewCache creates a cache holding at most capacity documents.
// A non-positive capacity selects DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]Document, capacity),
		order:    make([]string, 0, capacity),
		observer: nopObserver{},
	}
}

// SetObserver registers the observer notified of hits, misses and evictions.
func (c *Cache) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

func cacheKey(kind, id string) string {
	return kind + "/" + id
}

// Lookup returns the cached document without touching any repository.
func (c *Cache) Lookup(kind, id string) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.entries[cacheKey(kind, id)]
	if !ok {
		return nil, false
	}
	clone := doc.Clone()
	return &clone, true
}

// Contains reports whether kind/id is resident.
func (c *Cache) Contains(kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[cacheKey(kind, id)]
	return ok
}

// Fetch returns the cached document or runs load and caches its result.
// Absent documents and load errors are not cached.
func (c *Cache) Fetch(ctx context.Context, kind, id string, load Loader) (*Document, error) {
	if doc, ok := c.Lookup(kind, id); ok {
		c.observe().CacheHit(kind)
		return doc, nil
	}
	c.observe().CacheMiss(kind)

	doc, err := load(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	stored := c.insert(cacheKey(kind, id), *doc)
	return &stored, nil
}

// insert adds doc under key unless a concurrent Fetch already did, evicting
// the oldest entry when full. It returns a copy of the resident document.
func (c *Cache) insert(key string, doc Document) Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		return existing.Clone()
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		copy(c.order, c.order[1:])
		c.order = c.order[:len(c.order)-1]
		delete(c.entries, oldest)
		c.observer.CacheEvicted()
	}
	resident := doc.Clone()
	c.entries[key] = resident
	c.order = append(c.order, key)
	return resident.Clone()
}

func (c *Cache) observe() Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

// Len returns the number of resident documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Capacity returns the maximum number of resident documents.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Keys returns the resident keys ("kind/id"), oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}
