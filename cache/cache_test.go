package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(clock Clock, opts ...Option) *ResultCache[string] {
	return New[string](append([]Option{WithClock(clock), WithLogger(logging.Discard())}, opts...)...)
}

func TestResultCacheGetSetHas(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(newFakeClock())

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "doc:agent", "result", 0))
	v, ok, err := c.Get(ctx, "doc:agent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "result", v)

	has, err := c.Has(ctx, "doc:agent")
	require.NoError(t, err)
	assert.True(t, has)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, DefaultMaxSize, stats.MaxSize)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, DefaultTTL, stats.TTL)
}

func TestResultCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock, WithTTL(time.Minute))

	require.NoError(t, c.Set(ctx, "default", "a", 0))
	require.NoError(t, c.Set(ctx, "short", "b", 10*time.Second))

	clock.Advance(10 * time.Second)
	_, ok, _ := c.Get(ctx, "short")
	assert.True(t, ok, "entry is live up to its expiry instant")

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "short")
	assert.False(t, ok)
	has, _ := c.Has(ctx, "default")
	assert.True(t, has)

	clock.Advance(time.Minute)
	has, _ = c.Has(ctx, "default")
	assert.False(t, has)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 0, stats.Size, "expired entries are deleted on access")
}

func TestResultCacheEvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(newFakeClock(), WithMaxSize(3))

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), fmt.Sprint(i), 0))
	}
	// Reads do not refresh position.
	_, ok, _ := c.Get(ctx, "k1")
	require.True(t, ok)
	// Overwrites keep position.
	require.NoError(t, c.Set(ctx, "k2", "two", 0))

	require.NoError(t, c.Set(ctx, "k4", "4", 0))

	has, _ := c.Has(ctx, "k1")
	assert.False(t, has, "oldest inserted entry is evicted")
	v, ok, _ := c.Get(ctx, "k2")
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, c.Set(ctx, "k5", "5", 0))
	has, _ = c.Has(ctx, "k2")
	assert.False(t, has)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 3, stats.Size)
}

func TestResultCacheDeleteClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(newFakeClock())

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Delete(ctx, "a"))
	require.NoError(t, c.Delete(ctx, "missing"))

	has, _ := c.Has(ctx, "a")
	assert.False(t, has)

	_, _, _ = c.Get(ctx, "b")
	require.NoError(t, c.Clear(ctx))
	stats, _ := c.Stats(ctx)
	assert.Equal(t, Stats{MaxSize: DefaultMaxSize, TTL: DefaultTTL}, stats)
}

func TestResultCacheSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set(ctx, "old", "1", time.Second))
	require.NoError(t, c.Set(ctx, "new", "2", time.Hour))
	clock.Advance(2 * time.Second)

	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(0), stats.Misses, "sweeping is not a lookup")
}

func TestResultCacheBackgroundSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock, WithSweepInterval(time.Millisecond))

	require.NoError(t, c.Set(ctx, "old", "1", time.Second))
	clock.Advance(time.Minute)

	c.Start(ctx)
	c.Start(ctx)
	defer c.Stop()

	assert.Eventually(t, func() bool {
		stats, _ := c.Stats(ctx)
		return stats.Size == 0
	}, time.Second, time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestResultCacheConcurrentSetSameKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Set(ctx, "same", fmt.Sprint(i), 0)
			_, _, _ = c.Get(ctx, "same")
		}(i)
	}
	wg.Wait()

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 1, stats.Size)
}
