package errorhandler

import (
	"fmt"

	"github.com/sweetpotato0/lexdraft/middleware"
	"github.com/sweetpotato0/lexdraft/oracle"
)

// Func rewrites the error of a failed call.
type Func func(call *middleware.Context, err error) error

// ErrorHandler passes downstream failures through a Func.
type ErrorHandler struct {
	handle Func
}

// New returns an ErrorHandler around fn.
func New(fn Func) *ErrorHandler {
	return &ErrorHandler{handle: fn}
}

// Normalizer turns every failure into an *oracle.Error tagged with provider.
// An expired call context is joined to err first, so cancellation stays
// cancellation and a per-call deadline classifies as a timeout.
func Normalizer(provider string) *ErrorHandler {
	return New(func(call *middleware.Context, err error) error {
		if ctxErr := call.Context().Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return oracle.Wrap(provider, 0, err)
	})
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute runs next and hands its error, if any, to the Func.
func (m *ErrorHandler) Execute(call *middleware.Context, next middleware.Handler) error {
	err := next(call)
	if err == nil || m.handle == nil {
		return err
	}
	return m.handle(call, err)
}
