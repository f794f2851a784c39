package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(opts Options) (*Cache[string], *time.Time) {
	c := New[string](opts)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGetFreshAndExpired(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute})

	c.Set("k", "v", "primary")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	*now = now.Add(59 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok, "entry should be fresh until TTL elapses")

	*now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entry without stale serving must be absent")
	assert.False(t, c.Has("k"), "expired entry must be evicted on access")
}

func TestStaleWhileRevalidate(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute, StaleTime: 5 * time.Minute, StaleWhileRevalidate: true})

	c.Set("k", "v", "primary")

	*now = now.Add(3 * time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok, "stale-but-usable entry should still be served")
	assert.Equal(t, "v", got)
	assert.True(t, c.IsStale("k"))

	*now = now.Add(4 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "past the stale window the entry is gone")
}

func TestCapacityEvictsSingleOldest(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Hour, MaxSize: 3})

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", "primary")
		*now = now.Add(time.Second)
	}

	c.Set("k3", "v", "primary")

	assert.False(t, c.Has("k0"), "oldest-by-write entry must be evicted")
	assert.True(t, c.Has("k1"))
	assert.True(t, c.Has("k2"))
	assert.True(t, c.Has("k3"))
	assert.Equal(t, 3, c.Stats().Size)
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Hour, MaxSize: 2})

	c.Set("a", "1", "primary")
	*now = now.Add(time.Second)
	c.Set("b", "2", "primary")
	*now = now.Add(time.Second)
	c.Set("a", "3", "primary")

	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	got, _ := c.Get("a")
	assert.Equal(t, "3", got)
}

func TestPerCallTTLOverride(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute})

	c.Set("short", "v", "primary", 10*time.Second)
	c.Set("long", "v", "primary")

	*now = now.Add(30 * time.Second)
	assert.False(t, c.Has("short"))
	assert.True(t, c.Has("long"))
}

func TestTouchExtendsExpiry(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute})

	c.Set("k", "v", "primary")
	*now = now.Add(50 * time.Second)
	require.True(t, c.Touch("k"))

	*now = now.Add(50 * time.Second)
	assert.True(t, c.Has("k"), "touched entry outlives its original expiry")

	assert.False(t, c.Touch("missing"))
}

func TestTTLRemaining(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute})

	c.Set("k", "v", "primary")
	assert.Equal(t, time.Minute, c.TTL("k"))

	*now = now.Add(40 * time.Second)
	assert.Equal(t, 20*time.Second, c.TTL("k"))

	*now = now.Add(30 * time.Second)
	assert.Equal(t, time.Duration(0), c.TTL("k"))
	assert.Equal(t, time.Duration(0), c.TTL("missing"))
}

func TestCleanupCountsRemoved(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Minute, StaleTime: time.Minute, StaleWhileRevalidate: true})

	c.Set("dead1", "v", "primary")
	c.Set("dead2", "v", "primary")
	*now = now.Add(90 * time.Second)
	c.Set("alive", "v", "primary")

	*now = now.Add(45 * time.Second)
	// dead1/dead2 are now past expiry+stale, alive is within its TTL.
	assert.Equal(t, 2, c.Cleanup())
	assert.True(t, c.Has("alive"))
	assert.Equal(t, 1, c.Stats().Size)
}

func TestStats(t *testing.T) {
	c, now := newTestCache(Options{TTL: time.Hour})
	start := *now

	c.Set("a", "1", "primary")
	*now = now.Add(time.Minute)
	c.Set("b", "2", "fallback")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.ElementsMatch(t, []string{"a", "b"}, stats.Keys)
	assert.Equal(t, start, stats.Oldest)
	assert.Equal(t, start.Add(time.Minute), stats.Newest)

	entry, ok := c.GetEntry("b")
	require.True(t, ok)
	assert.Equal(t, "fallback", entry.Source)
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(Options{TTL: time.Hour})

	c.Set("a", "1", "primary")
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	c.Set("b", "2", "primary")
	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}
