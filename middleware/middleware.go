package middleware

import (
	"context"

	"github.com/sweetpotato0/lexdraft/oracle"
)

type stageKey struct{}

// WithStage tags ctx with the pipeline stage issuing oracle calls, so middlewares
// can attribute them.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the stage recorded by WithStage, or "".
func StageFrom(ctx context.Context) string {
	s, _ := ctx.Value(stageKey{}).(string)
	return s
}

// Context represents one oracle call travelling through the chain.
type Context struct {
	// Stage that issued the call, taken from the request context
	Stage string

	// Prompt sent to the oracle; middlewares may rewrite it
	Prompt string

	// Options for the call
	Options oracle.Options

	// Response text, set once the oracle answered
	Response string

	// Error from execution
	Error error

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context, prompt string, opts oracle.Options) *Context {
	return &Context{
		Stage:    StageFrom(ctx),
		Prompt:   prompt,
		Options:  opts,
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware intercepts oracle calls.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic. Returning an error stops the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Len returns the number of middlewares in the chain.
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Wrap returns an oracle that sends every call through the chain before
// reaching inner.
func (c *MiddlewareChain) Wrap(inner oracle.Oracle) oracle.Oracle {
	if c == nil || len(c.middlewares) == 0 {
		return inner
	}
	return oracle.Func(func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		mc := NewContext(ctx, prompt, opts)
		err := c.Execute(mc, func(mc *Context) error {
			out, err := inner.Generate(mc.Context(), mc.Prompt, mc.Options)
			mc.Response = out
			mc.Error = err
			return err
		})
		if err != nil {
			return "", err
		}
		return mc.Response, nil
	})
}
