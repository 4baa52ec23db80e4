// Package ttlcache provides a generic key/value store with per-entry expiry.
//
// Expiry is enforced lazily on Get; CleanExpired and RunJanitor only bound
// memory and are never needed for correctness.
package ttlcache

import (
	"sync"
	"time"
)

// Entry is a stored value with its absolute creation and expiry times.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Cache is a map-backed TTL cache. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]Entry[V]
	now     func() time.Time
	onEvict func(K, V)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty cache.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		items: make(map[K]Entry[V]),
		now:   o.now,
	}
}

// Set stores value under key until now+ttl.
// A non-positive ttl stores nothing and returns false.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = Entry[V]{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return true
}

// Get returns the value for key if it has not expired.
// An expired entry is removed and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.GetEntry(key)
	return e.Value, ok
}

// GetEntry is like Get but also returns the entry timestamps.
func (c *Cache[K, V]) GetEntry(key K) (Entry[V], bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return Entry[V]{}, false
	}
	if !now.After(e.ExpiresAt) {
		return e, true
	}

	c.mu.Lock()
	// Re-check: a concurrent Set may have refreshed the entry.
	cur, ok := c.items[key]
	expired := ok && now.After(cur.ExpiresAt)
	if expired {
		delete(c.items, key)
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	if expired && onEvict != nil {
		onEvict(key, cur.Value)
	}
	return Entry[V]{}, false
}

// OnEvict registers fn to run whenever an entry is dropped because it
// expired, either lazily on lookup or by CleanExpired. fn runs without the
// cache lock held. Delete, DeleteFunc and Clear do not call it.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteFunc removes every key for which match returns true and reports how many were removed.
func (c *Cache[K, V]) DeleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.items {
		if match(k) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]Entry[V])
}

// CleanExpired sweeps every expired entry and returns the number removed.
func (c *Cache[K, V]) CleanExpired() int {
	now := c.now()

	c.mu.Lock()
	var evicted []Entry[V]
	var evictedKeys []K
	for k, e := range c.items {
		if now.After(e.ExpiresAt) {
			delete(c.items, k)
			evicted = append(evicted, e)
			evictedKeys = append(evictedKeys, k)
		}
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for i, k := range evictedKeys {
			onEvict(k, evicted[i].Value)
		}
	}
	return len(evictedKeys)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns a snapshot of the stored keys in no particular order.
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

// Sweeper is anything with a periodic expiry sweep.
type Sweeper interface {
	CleanExpired() int
}

// RunJanitor calls CleanExpired on every interval tick until stop is closed.
func RunJanitor(stop <-chan struct{}, interval time.Duration, s Sweeper) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanExpired()
		case <-stop:
			return
		}
	}
}
