package oracle

import "context"

// Options tunes a single generation call.
type Options struct {
	Temperature     float64
	MaxOutputTokens int64
	// Model overrides the provider's configured model when non-empty.
	Model string
}

// DefaultOptions mirrors the settings the pipeline uses when an agent profile leaves them unset.
func DefaultOptions() Options {
	return Options{
		Temperature:     0.3,
		MaxOutputTokens: 8192,
	}
}

// Merge fills zero fields of o from fallback.
func (o Options) Merge(fallback Options) Options {
	if o.Temperature == 0 {
		o.Temperature = fallback.Temperature
	}
	if o.MaxOutputTokens == 0 {
		o.MaxOutputTokens = fallback.MaxOutputTokens
	}
	if o.Model == "" {
		o.Model = fallback.Model
	}
	return o
}

// Oracle is a stateless text generator. Implementations must be safe for concurrent use.
type Oracle interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string, opts Options) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
