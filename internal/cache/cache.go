// Package cache provides a generic, thread-safe LRU cache with per-instance
// TTL expiry and hit/miss statistics.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// MaxSize is the maximum number of entries. Default: 1000
	MaxSize int
	// TTL is how long an entry stays valid after it was set. Default: 5m
	TTL time.Duration
	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"maxSize"`
	TTL     time.Duration `json:"ttl"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	HitRate float64       `json:"hitRate"`
}

// Cache is an LRU cache whose entries expire after a fixed TTL.
// Recency is updated on both Get and Set.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	cfg     Config
	order   *list.List // front = most recently used
	entries map[K]*list.Element
	hits    int64
	misses  int64
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

// New creates a cache. Zero config fields fall back to defaults.
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache[K, V]{
		cfg:     cfg,
		order:   list.New(),
		entries: make(map[K]*list.Element),
	}
}

// Get returns the value for key. An expired entry is evicted and counts as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !c.cfg.Now().Before(e.expiresAt) {
		c.removeElement(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set inserts or replaces the value for key, evicting the least recently
// used entry when the cache is full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.insertedAt = now
		e.expiresAt = now.Add(c.cfg.TTL)
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.cfg.MaxSize {
		c.removeElement(c.order.Back())
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{
		key:        key,
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(c.cfg.TTL),
	})
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// Clear drops all entries. Hit and miss counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[K]*list.Element)
}

// Prune removes every expired entry and returns how many were dropped.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[K, V]).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of stored entries, including not yet evicted expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns current usage counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.order.Len(),
		MaxSize: c.cfg.MaxSize,
		TTL:     c.cfg.TTL,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry[K, V]).key)
}
