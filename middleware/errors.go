package middleware

import "errors"

var (
	// ErrRateLimitExceeded indicates the local limiter refused the call
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidPrompt indicates prompt validation failed
	ErrInvalidPrompt = errors.New("invalid prompt")

	// ErrEmptyResponse indicates the oracle answered with no text
	ErrEmptyResponse = errors.New("empty oracle response")
)
