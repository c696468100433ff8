package limiter

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/middleware"
)

// ErrRateLimitExceeded is returned in non-blocking mode when no token is available.
var ErrRateLimitExceeded = middleware.ErrRateLimitExceeded

// Config holds the token bucket settings.
type Config struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64
	// Burst is the maximum number of calls allowed at once.
	Burst int
	// Cooldown is how long every caller is held back after the oracle reports a rate limit.
	Cooldown time.Duration
	// NonBlocking rejects calls instead of waiting for a token.
	NonBlocking bool
}

// DefaultConfig is conservative enough for free-tier Gemini quotas.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 2, Burst: 4, Cooldown: 10 * time.Second}
}

// RateLimiter throttles oracle calls with a token bucket and backs off after
// the oracle itself reports RateLimited.
type RateLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	retryAt  time.Time
	cooldown time.Duration
	block    bool
	now      func() time.Time
}

// NewRateLimiter creates a rate limiting middleware
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cooldown: cfg.Cooldown,
		block:    !cfg.NonBlocking,
		now:      time.Now,
	}
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute waits for (or, in non-blocking mode, demands) a token before the call.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	err := next(ctx)
	if err != nil && errors.Is(err, errorskg.ErrRateLimited) {
		m.RecordRateLimit(m.cooldown)
	}
	return err
}

func (m *RateLimiter) acquire(ctx *middleware.Context) error {
	m.mu.Lock()
	retryAt := m.retryAt
	m.mu.Unlock()

	now := m.now()
	if !m.block {
		if now.Before(retryAt) || !m.limiter.Allow() {
			return ErrRateLimitExceeded
		}
		return nil
	}

	c := ctx.Context()
	if now.Before(retryAt) {
		t := time.NewTimer(retryAt.Sub(now))
		defer t.Stop()
		select {
		case <-c.Done():
			return errorskg.Cancelled(c.Err())
		case <-t.C:
		}
	}
	if err := m.limiter.Wait(c); err != nil {
		if c.Err() != nil {
			return errorskg.Cancelled(c.Err())
		}
		return err
	}
	return nil
}

// RecordRateLimit holds back every caller for d.
func (m *RateLimiter) RecordRateLimit(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	until := m.now().Add(d)
	if until.After(m.retryAt) {
		m.retryAt = until
	}
}

// CoolingDown reports whether a recorded rate limit is still in effect.
func (m *RateLimiter) CoolingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.retryAt)
}
