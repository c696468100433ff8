package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/oracle"
)

// Policy describes how a call is retried.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	// Retryable decides whether a failed attempt is retried. Nil uses oracle.IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy is used for oracle calls unless configured otherwise.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		Timeout:           60 * time.Second,
	}
}

// SlowProviderPolicy suits providers with long generation latency such as Gemini.
func SlowProviderPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      2 * time.Second,
		MaxDelay:          15 * time.Second,
		BackoffMultiplier: 2,
		Timeout:           120 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return oracle.IsRetryable(err)
}

// Attempt records the outcome of one try.
type Attempt struct {
	Number  int
	Err     error
	Kind    oracle.Kind
	Elapsed time.Duration
	// Wait is the backoff applied after this attempt; zero for the last one.
	Wait time.Duration
}

// Report lists every attempt made by Do in order.
type Report struct {
	Attempts []Attempt
}

// Retries is the number of attempts after the first.
func (r Report) Retries() int {
	if len(r.Attempts) == 0 {
		return 0
	}
	return len(r.Attempts) - 1
}

// Do runs fn until it succeeds, fails with a non-retryable error, exhausts
// MaxRetries+1 attempts, or ctx is cancelled. Attempts exceeding Timeout are
// cancelled and counted as timeouts.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, Report, error) {
	var (
		zero   T
		report Report
	)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, report, errorskg.Cancelled(err)
		}

		start := time.Now()
		out, err := call(ctx, p.Timeout, fn)
		rec := Attempt{Number: attempt + 1, Err: err, Elapsed: time.Since(start)}
		if err == nil {
			report.Attempts = append(report.Attempts, rec)
			return out, report, nil
		}
		rec.Kind = oracle.Classify(err)

		if ctx.Err() != nil {
			report.Attempts = append(report.Attempts, rec)
			return zero, report, errorskg.Cancelled(ctx.Err())
		}
		if !p.retryable(err) {
			report.Attempts = append(report.Attempts, rec)
			return zero, report, err
		}
		if attempt >= p.MaxRetries {
			report.Attempts = append(report.Attempts, rec)
			return zero, report, fmt.Errorf("%w after %d attempts: %w", errorskg.ErrRetriesExhausted, attempt+1, err)
		}

		rec.Wait = p.Delay(attempt)
		report.Attempts = append(report.Attempts, rec)
		if err := sleep(ctx, rec.Wait); err != nil {
			return zero, report, errorskg.Cancelled(err)
		}
	}
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var oe *oracle.Error
		if !errors.As(err, &oe) {
			err = &oracle.Error{Kind: oracle.KindTimeout, Provider: "retry", Err: err}
		}
	}
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
