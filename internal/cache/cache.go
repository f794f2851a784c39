package cache

import (
	"sync"
	"time"
)

// Entry wraps a cached value with its write-time metadata.
type Entry[V any] struct {
	Value     V
	Source    string
	WrittenAt time.Time
	ExpiresAt time.Time
}

// Options tune a cache instance. TTL and StaleTime apply to every Set unless
// overridden per call.
type Options struct {
	TTL                  time.Duration
	StaleTime            time.Duration
	MaxSize              int
	StaleWhileRevalidate bool
}

// Stats summarises cache occupancy.
type Stats struct {
	Size   int
	Keys   []string
	Oldest time.Time
	Newest time.Time
}

// Cache is a key/value store with lazy TTL expiry, optional
// stale-while-revalidate serving, and oldest-by-write eviction at capacity.
// Expiry is evaluated on access; there is no background timer.
type Cache[V any] struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*Entry[V]
	now     func() time.Time
}

// New constructs a cache. Zero or negative option values fall back to
// defaults: 1m TTL, 5m stale window, 100 entries.
func New[V any](opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = 5 * time.Minute
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	return &Cache[V]{
		opts:    opts,
		entries: make(map[string]*Entry[V]),
		now:     time.Now,
	}
}

// Get returns the cached value while it is fresh, or stale-but-usable when
// stale-while-revalidate is enabled. Past the stale window the entry is
// evicted and Get reports absence. Callers that need to distinguish fresh
// from stale use IsStale or GetEntry.
func (c *Cache[V]) Get(key string) (V, bool) {
	entry, ok := c.GetEntry(key)
	if !ok {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// GetEntry behaves like Get but exposes the entry metadata.
func (c *Cache[V]) GetEntry(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}

	now := c.now()
	if !now.After(e.ExpiresAt) {
		return *e, true
	}
	if c.opts.StaleWhileRevalidate && !now.After(e.ExpiresAt.Add(c.opts.StaleTime)) {
		return *e, true
	}

	delete(c.entries, key)
	return Entry[V]{}, false
}

// Peek returns the raw entry regardless of expiry, with no eviction side
// effect. Callers use it to serve arbitrarily stale data as a last resort.
func (c *Cache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Set inserts or overwrites an entry. An optional ttl overrides the instance
// default for this entry only. At capacity the single oldest-by-write entry
// is evicted first.
func (c *Cache[V]) Set(key string, value V, source string, ttl ...time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	effective := c.opts.TTL
	if len(ttl) > 0 && ttl[0] > 0 {
		effective = ttl[0]
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxSize {
		c.evictOldestLocked()
	}

	now := c.now()
	c.entries[key] = &Entry[V]{
		Value:     value,
		Source:    source,
		WrittenAt: now,
		ExpiresAt: now.Add(effective),
	}
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.WrittenAt.Before(oldest) {
			oldestKey = key
			oldest = e.WrittenAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Has reports whether Get would return a value for key.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.GetEntry(key)
	return ok
}

// IsStale reports whether the entry exists but is past its hard TTL. Absent
// keys are not stale.
func (c *Cache[V]) IsStale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	return c.now().After(e.ExpiresAt)
}

// TTL returns the remaining time until hard expiry, or zero when the entry
// is absent or already expired.
func (c *Cache[V]) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	remaining := e.ExpiresAt.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Touch extends an entry's expiry in place by the instance TTL or the given
// override. It reports whether the entry existed.
func (c *Cache[V]) Touch(key string, ttl ...time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	effective := c.opts.TTL
	if len(ttl) > 0 && ttl[0] > 0 {
		effective = ttl[0]
	}
	e.ExpiresAt = c.now().Add(effective)
	return true
}

// Delete removes an entry, reporting whether it existed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Cleanup sweeps every entry past its serving window (hard expiry plus the
// stale window when stale-while-revalidate is enabled) and returns the
// number removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		deadline := e.ExpiresAt
		if c.opts.StaleWhileRevalidate {
			deadline = deadline.Add(c.opts.StaleTime)
		}
		if now.After(deadline) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports current occupancy and the write-time bounds.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Size: len(c.entries), Keys: make([]string, 0, len(c.entries))}
	first := true
	for key, e := range c.entries {
		stats.Keys = append(stats.Keys, key)
		if first {
			stats.Oldest = e.WrittenAt
			stats.Newest = e.WrittenAt
			first = false
			continue
		}
		if e.WrittenAt.Before(stats.Oldest) {
			stats.Oldest = e.WrittenAt
		}
		if e.WrittenAt.After(stats.Newest) {
			stats.Newest = e.WrittenAt
		}
	}
	return stats
}
