package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks oracle failures that may succeed when retried
	ErrTransient = errors.New("transient oracle error")

	// ErrRateLimited indicates the oracle rejected the call because of quota or rate
	ErrRateLimited = errors.New("oracle rate limited")

	// ErrServiceUnavailable indicates the oracle could not serve the call
	ErrServiceUnavailable = errors.New("oracle service unavailable")

	// ErrTimeout indicates the oracle call exceeded its deadline
	ErrTimeout = errors.New("oracle call timed out")

	// ErrRetriesExhausted indicates a retried call failed on every attempt
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMalformedOutput indicates oracle output failed structural validation
	ErrMalformedOutput = errors.New("malformed oracle output")

	// ErrStageFailure indicates a pipeline stage failed without a safe fallback
	ErrStageFailure = errors.New("stage failure")

	// ErrCancelled indicates the run was cancelled by its caller
	ErrCancelled = errors.New("run cancelled")

	// ErrNoExtractableText indicates a source document carries no text layer
	ErrNoExtractableText = errors.New("no extractable text")
)

// StageError reports the pipeline stage that failed and the original cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStageFailure) match any StageError.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailure
}

// NewStageError wraps err with the failing stage name.
// Cancellations are returned untouched so they never surface as failures.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// MalformedOutputError carries the raw oracle text that could not be decoded.
type MalformedOutputError struct {
	Raw    string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return "malformed oracle output: " + e.Reason
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// Cancelled wraps a context error so it matches ErrCancelled.
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
