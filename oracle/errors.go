package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	errorskg "github.com/sweetpotato0/lexdraft/errors"
)

// Kind classifies oracle failures.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindTimeout            Kind = "timeout"
	KindUnknown            Kind = "unknown"
)

// Transient reports whether a failure of this kind is worth retrying.
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimited, KindServiceUnavailable, KindTimeout:
		return true
	}
	return false
}

// Error is the normalized failure returned by providers.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s oracle %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s oracle %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the kind onto the shared sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case errorskg.ErrTransient:
		return e.Kind.Transient()
	case errorskg.ErrRateLimited:
		return e.Kind == KindRateLimited
	case errorskg.ErrServiceUnavailable:
		return e.Kind == KindServiceUnavailable
	case errorskg.ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// StatusCoder is implemented by errors that know the HTTP status of the failed call.
type StatusCoder interface {
	HTTPStatus() int
}

// Wrap normalizes err into an *Error tagged with provider. status may be zero
// when the caller could not extract one.
func Wrap(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindFromStatus(status)
	if kind == KindUnknown {
		kind = Classify(err)
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

// KindFromStatus maps an HTTP status code to a kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, 529:
		return KindServiceUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return KindTimeout
	}
	return KindUnknown
}

// Classify inspects an arbitrary error and returns its kind. Already classified
// errors keep their kind; otherwise the message is matched against known
// provider phrasings.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		if k := KindFromStatus(sc.HTTPStatus()); k != KindUnknown {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errorskg.ErrTimeout) {
		return KindTimeout
	}
	if errors.Is(err, errorskg.ErrRateLimited) {
		return KindRateLimited
	}
	if errors.Is(err, errorskg.ErrServiceUnavailable) {
		return KindServiceUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "ratelimit", "quota", "resource_exhausted", "too many requests"):
		return KindRateLimited
	case containsAny(msg, "503", "unavailable", "overloaded", "econnreset", "connection reset", "502", "bad gateway"):
		return KindServiceUnavailable
	case containsAny(msg, "timeout", "timed out", "etimedout", "deadline exceeded", "deadline_exceeded"):
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable is the default retry predicate: transient oracle failures only.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errorskg.ErrCancelled) {
		return false
	}
	return Classify(err).Transient()
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
