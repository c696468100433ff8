package enricher

import (
	"github.com/sweetpotato0/lexdraft/middleware"
	"github.com/sweetpotato0/lexdraft/oracle"
)

// Func adjusts a call before it reaches the oracle.
type Func func(call *middleware.Context) error

// Enricher runs a Func ahead of the rest of the chain.
type Enricher struct {
	fn Func
}

// New returns an Enricher around fn.
func New(fn Func) *Enricher {
	return &Enricher{fn: fn}
}

// StageOptions overrides generation options by stage name. Zero fields of
// an override keep the call's own value; stages without an entry are left
// alone.
func StageOptions(byStage map[string]oracle.Options) *Enricher {
	return New(func(call *middleware.Context) error {
		if o, ok := byStage[call.Stage]; ok {
			call.Options = o.Merge(call.Options)
		}
		return nil
	})
}

// Name returns the middleware name
func (m *Enricher) Name() string {
	return "Enricher"
}

// Execute applies the Func and continues unless it failed.
func (m *Enricher) Execute(call *middleware.Context, next middleware.Handler) error {
	if m.fn != nil {
		if err := m.fn(call); err != nil {
			return err
		}
	}
	return next(call)
}
