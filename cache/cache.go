// Package cache memoizes finished pipeline runs.
//
// ResultCache is an in-process, size-bounded store with per-entry TTL.
// When full it evicts the oldest inserted entry; reads never refresh an
// entry's position. Expired entries are dropped lazily on access and by a
// background sweep started with Start.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// Defaults used when no option overrides them.
const (
	DefaultTTL           = time.Hour
	DefaultMaxSize       = 500
	DefaultSweepInterval = 5 * time.Minute
)

// Store is implemented by every result cache backend.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"maxSize"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	HitRate float64       `json:"hitRate"`
	TTL     time.Duration `json:"ttl"`
}

// NewStats fills HitRate from hits and misses.
func NewStats(size, maxSize int, hits, misses int64, ttl time.Duration) Stats {
	s := Stats{Size: size, MaxSize: maxSize, Hits: hits, Misses: misses, TTL: ttl}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Settings holds the options shared by every backend.
type Settings struct {
	TTL           time.Duration
	MaxSize       int
	SweepInterval time.Duration
	Clock         Clock
	Logger        *slog.Logger
}

// Option configures a cache.
type Option func(*Settings)

// WithTTL sets the default time to live.
func WithTTL(ttl time.Duration) Option {
	return func(s *Settings) {
		if ttl > 0 {
			s.TTL = ttl
		}
	}
}

// WithMaxSize bounds the number of entries.
func WithMaxSize(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.MaxSize = n
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Settings) {
		if d > 0 {
			s.SweepInterval = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Settings) {
		if c != nil {
			s.Clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.Logger = l
		}
	}
}

// NewSettings applies opts over the defaults.
func NewSettings(opts ...Option) Settings {
	s := Settings{
		TTL:           DefaultTTL,
		MaxSize:       DefaultMaxSize,
		SweepInterval: DefaultSweepInterval,
		Clock:         systemClock{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.Logger == nil {
		s.Logger = logging.WithComponent("cache")
	}
	return s
}

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// ResultCache is the in-memory Store. All methods are safe for concurrent
// use; concurrent Sets of one key keep the last write.
type ResultCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest first
	hits    int64
	misses  int64

	settings Settings
	sweeper  *Sweeper
}

// New creates an empty ResultCache.
func New[V any](opts ...Option) *ResultCache[V] {
	c := &ResultCache[V]{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		settings: NewSettings(opts...),
	}
	c.sweeper = NewSweeper(c.settings.SweepInterval, c.Sweep, c.settings.Logger)
	return c
}

// Get returns the live value stored under key.
func (c *ResultCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		c.misses++
		var zero V
		return zero, false, nil
	}
	c.hits++
	return e.value, true, nil
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
// Overwriting keeps the entry's insertion position; inserting into a full
// cache first evicts the oldest entry.
func (c *ResultCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.settings.TTL
	}
	now := c.settings.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value, e.createdAt, e.expiresAt = value, now, now.Add(ttl)
		return nil
	}
	if c.order.Len() >= c.settings.MaxSize {
		if oldest := c.order.Front(); oldest != nil {
			evicted := c.remove(oldest)
			c.settings.Logger.Debug("cache entry evicted", "key", evicted)
		}
	}
	c.entries[key] = c.order.PushBack(&entry[V]{key: key, value: value, createdAt: now, expiresAt: now.Add(ttl)})
	return nil
}

// Has reports whether key holds a live value. It does not count as a hit.
func (c *ResultCache[V]) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

// Delete removes key.
func (c *ResultCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

// Clear removes every entry and resets the counters.
func (c *ResultCache[V]) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits, c.misses = 0, 0
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache[V]) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewStats(c.order.Len(), c.settings.MaxSize, c.hits, c.misses, c.settings.TTL), nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *ResultCache[V]) Sweep(_ context.Context) (int, error) {
	now := c.settings.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*entry[V]); now.After(e.expiresAt) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed, nil
}

// Start launches the background sweep. It stops with ctx or Stop.
func (c *ResultCache[V]) Start(ctx context.Context) {
	c.sweeper.Start(ctx)
}

// Stop ends the background sweep and waits for it to exit.
func (c *ResultCache[V]) Stop() {
	c.sweeper.Stop()
}

// live returns the entry for key, deleting it when expired. c.mu is held.
func (c *ResultCache[V]) live(key string) (*entry[V], bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry[V])
	if c.settings.Clock.Now().After(e.expiresAt) {
		c.remove(el)
		return nil, false
	}
	return e, true
}

func (c *ResultCache[V]) remove(el *list.Element) string {
	e := c.order.Remove(el).(*entry[V])
	delete(c.entries, e.key)
	return e.key
}
