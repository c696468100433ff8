package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/lexdraft/middleware"
	"github.com/sweetpotato0/lexdraft/oracle"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// RequestLogger logs outgoing oracle prompts
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware. A nil logger uses the
// package default.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("oracle")
	}
	return &RequestLogger{logger: logger}
}

// Name returns the middleware name
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute logs the request
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	m.logger.DebugContext(ctx.Context(), "oracle request",
		"stage", ctx.Stage,
		"prompt_chars", len(ctx.Prompt),
		"temperature", ctx.Options.Temperature,
		"max_output_tokens", ctx.Options.MaxOutputTokens,
	)
	return next(ctx)
}

// ResponseLogger logs oracle answers and failures with their latency
type ResponseLogger struct {
	logger *slog.Logger
}

// NewResponseLogger creates a response logging middleware
func NewResponseLogger(logger *slog.Logger) *ResponseLogger {
	if logger == nil {
		logger = logging.WithComponent("oracle")
	}
	return &ResponseLogger{logger: logger}
}

// Name returns the middleware name
func (m *ResponseLogger) Name() string {
	return "ResponseLogger"
}

// Execute logs the response
func (m *ResponseLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	err := next(ctx)
	elapsed := time.Since(start)
	if err != nil {
		m.logger.WarnContext(ctx.Context(), "oracle call failed",
			"stage", ctx.Stage,
			"kind", oracle.Classify(err),
			"duration", elapsed,
			"error", err,
		)
		return err
	}
	m.logger.DebugContext(ctx.Context(), "oracle response",
		"stage", ctx.Stage,
		"duration", elapsed,
		"response_chars", len(ctx.Response),
	)
	return nil
}
