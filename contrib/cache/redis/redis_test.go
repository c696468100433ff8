package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/lexdraft/cache"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

type result struct {
	Draft string  `json:"draft"`
	Score float64 `json:"score"`
}

func newTestCache(t *testing.T, opts ...cache.Option) *Cache[result] {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	prefix := fmt.Sprintf("lexdraft:test:%d:", time.Now().UnixNano())
	c := New[result](&Config{Addr: addr, Prefix: prefix}, append(opts, cache.WithLogger(logging.Discard()))...)
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "doc:agent", result{Draft: "texto", Score: 9.2}, 0))
	v, ok, err := c.Get(ctx, "doc:agent")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result{Draft: "texto", Score: 9.2}, v)

	has, err := c.Has(ctx, "doc:agent")
	require.NoError(t, err)
	assert.True(t, has)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	require.NoError(t, c.Delete(ctx, "doc:agent"))
	has, err = c.Has(ctx, "doc:agent")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRedisCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, cache.WithMaxSize(2))

	require.NoError(t, c.Set(ctx, "a", result{Draft: "a"}, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", result{Draft: "b"}, 0))
	require.NoError(t, c.Set(ctx, "a", result{Draft: "a2"}, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", result{Draft: "c"}, 0))

	has, err := c.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has, "overwrite must not move a to the back")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Size)
}

func TestRedisCacheExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "short", result{Draft: "x"}, 50*time.Millisecond))
	time.Sleep(120 * time.Millisecond)

	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}
