package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard/internal/cache"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(maxSize int, ttl time.Duration) (*cache.Cache[string, int], *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return cache.New[string, int](cache.Config{MaxSize: maxSize, TTL: ttl, Now: clk.Now}), clk
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", 1)

	clk.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry must not outlive its TTL")
	assert.Equal(t, 0, c.Len(), "expired entry is evicted lazily on Get")
}

func TestCache_SetRefreshesTTL(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", 1)
	clk.Advance(50 * time.Second)
	c.Set("a", 1)
	clk.Advance(50 * time.Second)

	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(3, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes least recently used.
	_, _ = c.Get("a")
	c.Set("d", 4)

	_, ok := c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_SetUpdatesRecency(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestCache_Stats(t *testing.T) {
	c, _ := newTestCache(5, time.Minute)
	assert.Equal(t, 0.0, c.Stats().HitRate)

	c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.75, s.HitRate, 1e-9)
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, 5, s.MaxSize)
	assert.Equal(t, time.Minute, s.TTL)
}

func TestCache_ClearAndDelete(t *testing.T) {
	c, _ := newTestCache(5, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_Prune(t *testing.T) {
	c, clk := newTestCache(5, time.Minute)
	c.Set("a", 1)
	clk.Advance(30 * time.Second)
	c.Set("b", 2)
	clk.Advance(31 * time.Second)

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := cache.New[string, int](cache.Config{MaxSize: 50, TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*j)%80)
				c.Set(key, j)
				_, _ = c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
