package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/lexdraft/middleware"
	"github.com/sweetpotato0/lexdraft/oracle"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
	"github.com/sweetpotato0/lexdraft/prompt"
	"github.com/sweetpotato0/lexdraft/retry"
)

// Call describes one finished oracle exchange, successful or not.
type Call struct {
	Stage         string
	Template      string
	PromptChars   int
	ResponseChars int
	Duration      time.Duration
	Report        retry.Report
	Err           error
}

// Exchange is the prompt sent and the text received.
type Exchange struct {
	Prompt string
	Text   string
}

// Caller renders prompts and sends them to the oracle under a retry policy.
// All stages of a run share one Caller.
type Caller struct {
	oracle   oracle.Oracle
	prompts  *prompt.Library
	policy   retry.Policy
	options  oracle.Options
	logger   *slog.Logger
	observer func(context.Context, Call)
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithPolicy sets the retry policy.
func WithPolicy(p retry.Policy) CallerOption {
	return func(c *Caller) { c.policy = p }
}

// WithOptions sets the generation options sent with every call.
func WithOptions(o oracle.Options) CallerOption {
	return func(c *Caller) { c.options = o.Merge(oracle.DefaultOptions()) }
}

// WithPrompts replaces the built-in prompt templates.
func WithPrompts(m *prompt.Library) CallerOption {
	return func(c *Caller) {
		if m != nil {
			c.prompts = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers fn to receive every finished Call.
func WithObserver(fn func(context.Context, Call)) CallerOption {
	return func(c *Caller) { c.observer = fn }
}

// NewCaller creates a Caller over o. o is usually already wrapped by a
// middleware chain.
func NewCaller(o oracle.Oracle, opts ...CallerOption) *Caller {
	c := &Caller{
		oracle:  o,
		prompts: prompt.MustDefault(),
		policy:  retry.DefaultPolicy(),
		options: oracle.DefaultOptions(),
		logger:  logging.WithComponent("stage"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the caller's logger.
func (c *Caller) Logger() *slog.Logger { return c.logger }

// Generate renders template with vars and sends it to the oracle on behalf
// of stage.
func (c *Caller) Generate(ctx context.Context, stage, template string, vars map[string]interface{}) (*Exchange, error) {
	text, err := c.prompts.Render(template, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", template, err)
	}
	return c.Send(ctx, stage, template, text)
}

// Send delivers an already rendered prompt.
func (c *Caller) Send(ctx context.Context, stage, template, text string) (*Exchange, error) {
	stageCtx := middleware.WithStage(ctx, stage)
	start := time.Now()
	out, report, err := retry.Do(stageCtx, c.policy, func(ctx context.Context) (string, error) {
		return c.oracle.Generate(ctx, text, c.options)
	})
	call := Call{
		Stage:         stage,
		Template:      template,
		PromptChars:   len([]rune(text)),
		ResponseChars: len([]rune(out)),
		Duration:      time.Since(start),
		Report:        report,
		Err:           err,
	}
	c.logAttempts(stageCtx, call)
	if c.observer != nil {
		c.observer(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return &Exchange{Prompt: text, Text: out}, nil
}

func (c *Caller) logAttempts(ctx context.Context, call Call) {
	for _, a := range call.Report.Attempts {
		if a.Err == nil {
			continue
		}
		if a.Wait > 0 {
			c.logger.WarnContext(ctx, "oracle call failed, retrying",
				"stage", call.Stage,
				"attempt", a.Number,
				"kind", string(a.Kind),
				"delay", a.Wait,
				"error", a.Err,
			)
			continue
		}
		c.logger.ErrorContext(ctx, "oracle call failed",
			"stage", call.Stage,
			"attempt", a.Number,
			"kind", string(a.Kind),
			"error", a.Err,
		)
	}
}
