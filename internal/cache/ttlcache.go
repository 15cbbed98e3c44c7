// Package cache implements the generic TTL cache used for quote fan-out,
// holdings lookups and the cached limit-up list. It combines the LRU
// discipline of a classic in-memory store with golang.org/x/sync/singleflight
// so that concurrent misses on the same key collapse into one loader call.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	key        string
	value      V
	expiresAt  time.Time // zero means no expiry
	hasExpiry  bool
}

// Stats mirrors the contract's stats() operation.
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64
	Evictions int64
	Size      int
}

// Loader computes the value for a cache miss.
type Loader[V any] func() (V, error)

// Cache is a generic, concurrency-safe, TTL+LRU cache with single-flight
// fill. K is reduced to a string via fmt.Sprintf for both map and
// singleflight keys, which is sufficient for the string/int key types this
// engine ever caches on.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> element in order, Value is *entry[V]
	order   *list.List               // front = most recently used

	group singleflight.Group

	hits, misses, loads, evictions int64
}

// New creates a cache with the given LRU cap. maxSize <= 0 means unbounded.
func New[K comparable, V any](maxSize int) *Cache[K, V] {
	return &Cache[K, V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func keyString[K comparable](key K) string {
	return fmt.Sprintf("%v", key)
}

// GetOrFill returns the cached value for key, loading it via loader if
// absent or expired. Concurrent callers for the same key while a load is
// in flight share that single call and its result; a failed load is never
// cached. The boolean return is false when the first lookup found the
// value cached, and true otherwise: also for a caller that shared another
// caller's in-flight load, and for a failed load.
func (c *Cache[K, V]) GetOrFill(key K, loader Loader[V], ttl time.Duration) (V, bool, error) {
	sk := keyString(key)

	if v, ok := c.lookup(sk); ok {
		return v, false, nil
	}

	result, err, _ := c.group.Do(sk, func() (any, error) {
		// Re-check under the singleflight key: another goroutine may have
		// populated the value while we were queued behind the group lock.
		if v, ok := c.lookup(sk); ok {
			return v, nil
		}

		c.mu.Lock()
		c.loads++
		c.mu.Unlock()

		v, err := loader()
		if err != nil {
			return v, err
		}
		c.set(sk, v, ttl)
		return v, nil
	})

	var zero V
	if err != nil {
		return zero, true, err
	}
	return result.(V), true, nil
}

func (c *Cache[K, V]) lookup(sk string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[sk]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if ent.hasExpiry && time.Now().After(ent.expiresAt) {
		c.removeElement(el)
		c.misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

func (c *Cache[K, V]) set(sk string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent := &entry[V]{key: sk, value: value}
	if ttl > 0 {
		ent.hasExpiry = true
		ent.expiresAt = time.Now().Add(ttl)
	}

	if el, ok := c.items[sk]; ok {
		el.Value = ent
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(ent)
	c.items[sk] = el

	if c.maxSize > 0 && len(c.items) > c.maxSize {
		c.evictOldest()
	}
}

// Set writes key unconditionally, bypassing the loader path. Used to seed
// the cache (e.g. batch quote fetch populating several keys at once).
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.set(keyString(key), value, ttl)
}

func (c *Cache[K, V]) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeElement(el)
	c.evictions++
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[V])
	delete(c.items, ent.key)
	c.order.Remove(el)
}

// Invalidate drops a single key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sk := keyString(key)
	if el, ok := c.items[sk]; ok {
		c.removeElement(el)
	}
}

// InvalidateAll clears the cache.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// StatsSnapshot returns the current counters.
func (c *Cache[K, V]) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Loads:     c.loads,
		Evictions: c.evictions,
		Size:      len(c.items),
	}
}
