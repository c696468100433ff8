// Package redis implements cache.Store on Redis so several processes can
// share finished runs. Values are stored as JSON under prefix+"entry:"+key
// with a native TTL; a sorted set scored by insertion time keeps the
// eviction order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/lexdraft/cache"
)

// Config holds Redis configuration
type Config struct {
	Addr     string // Redis server address (e.g., "localhost:6379")
	Password string // Redis password (if any)
	DB       int    // Redis database number
	Prefix   string // Key prefix for namespacing
}

// DefaultConfig returns the local development configuration.
func DefaultConfig() *Config {
	return &Config{Addr: "localhost:6379", Prefix: "lexdraft:results:"}
}

// Cache is a Redis-backed cache.Store.
type Cache[V any] struct {
	client   redis.UniversalClient
	prefix   string
	settings cache.Settings
	sweeper  *cache.Sweeper

	hits   atomic.Int64
	misses atomic.Int64
}

// New connects to the server described by cfg.
func New[V any](cfg *Config, opts ...cache.Option) *Cache[V] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient[V](client, cfg.Prefix, opts...)
}

// NewWithClient uses an existing client.
func NewWithClient[V any](client redis.UniversalClient, prefix string, opts ...cache.Option) *Cache[V] {
	if prefix == "" {
		prefix = DefaultConfig().Prefix
	}
	c := &Cache[V]{client: client, prefix: prefix, settings: cache.NewSettings(opts...)}
	c.sweeper = cache.NewSweeper(c.settings.SweepInterval, c.Sweep, c.settings.Logger)
	return c
}

func (c *Cache[V]) entryKey(key string) string { return c.prefix + "entry:" + key }

func (c *Cache[V]) orderKey() string { return c.prefix + "order" }

// Get returns the live value stored under key.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	data, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		c.client.ZRem(ctx, c.orderKey(), key)
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	c.hits.Add(1)
	return v, true, nil
}

// Set stores value under key. Overwrites keep the insertion position; a new
// key in a full cache evicts the oldest one first.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.settings.TTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	_, err = c.client.ZScore(ctx, c.orderKey(), key).Result()
	switch {
	case err == nil:
		if err := c.client.Set(ctx, c.entryKey(key), data, ttl).Err(); err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
		return nil
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("failed to read cache order: %w", err)
	}

	size, err := c.client.ZCard(ctx, c.orderKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to count cache entries: %w", err)
	}
	if size >= int64(c.settings.MaxSize) {
		oldest, err := c.client.ZPopMin(ctx, c.orderKey(), size-int64(c.settings.MaxSize)+1).Result()
		if err != nil {
			return fmt.Errorf("failed to evict cache entry: %w", err)
		}
		for _, z := range oldest {
			member, _ := z.Member.(string)
			c.client.Del(ctx, c.entryKey(member))
			c.settings.Logger.Debug("cache entry evicted", "key", member)
		}
	}

	now := c.settings.Clock.Now()
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.entryKey(key), data, ttl)
		pipe.ZAddNX(ctx, c.orderKey(), redis.Z{Score: float64(now.UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Has reports whether key holds a live value.
func (c *Cache[V]) Has(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.entryKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache entry: %w", err)
	}
	return n > 0, nil
}

// Delete removes key.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.entryKey(key))
		pipe.ZRem(ctx, c.orderKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry under the prefix and resets the counters.
func (c *Cache[V]) Clear(ctx context.Context) error {
	keys, err := c.client.ZRange(ctx, c.orderKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, c.entryKey(k))
	}
	del = append(del, c.orderKey())
	if err := c.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Stats returns the entry count tracked in the order set and this
// process's hit counters.
func (c *Cache[V]) Stats(ctx context.Context) (cache.Stats, error) {
	size, err := c.client.ZCard(ctx, c.orderKey()).Result()
	if err != nil {
		return cache.Stats{}, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return cache.NewStats(int(size), c.settings.MaxSize, c.hits.Load(), c.misses.Load(), c.settings.TTL), nil
}

// Sweep drops order entries whose value Redis has already expired.
func (c *Cache[V]) Sweep(ctx context.Context) (int, error) {
	keys, err := c.client.ZRange(ctx, c.orderKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}
	removed := 0
	for _, k := range keys {
		n, err := c.client.Exists(ctx, c.entryKey(k)).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to check cache entry: %w", err)
		}
		if n == 0 {
			c.client.ZRem(ctx, c.orderKey(), k)
			removed++
		}
	}
	return removed, nil
}

// Start launches the background sweep.
func (c *Cache[V]) Start(ctx context.Context) { c.sweeper.Start(ctx) }

// Stop ends the background sweep.
func (c *Cache[V]) Stop() { c.sweeper.Stop() }

// Ping checks if Redis connection is alive
func (c *Cache[V]) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Cache[V]) Close() error {
	return c.client.Close()
}
