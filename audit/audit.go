// Package audit carries stage lifecycle events out of a pipeline run.
// The pipeline only emits; sinks decide where events go.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind is the lifecycle point an event marks.
type Kind string

const (
	KindStageStart    Kind = "stage_start"
	KindStageComplete Kind = "stage_complete"
	KindStageError    Kind = "stage_error"
)

// Event describes one stage transition of a run.
type Event struct {
	RunID     string        `json:"runId"`
	AgentID   string        `json:"agentId,omitempty"`
	Stage     string        `json:"stage"`
	Kind      Kind          `json:"kind"`
	Iteration int           `json:"iteration"`
	Duration  time.Duration `json:"duration"`
	// TokenCost is the estimated oracle tokens the stage consumed.
	TokenCost int       `json:"tokenCost"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Sink receives events. Emit must not block the run for long and never
// fails it; sinks report their own errors.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// LogSink writes events to logger, errors at error level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, e Event) {
	level := slog.LevelInfo
	switch e.Kind {
	case KindStageStart:
		level = slog.LevelDebug
	case KindStageError:
		level = slog.LevelError
	}
	attrs := []any{
		"run_id", e.RunID,
		"stage", e.Stage,
		"iteration", e.Iteration,
	}
	if e.Kind != KindStageStart {
		attrs = append(attrs, "duration", e.Duration, "token_cost", e.TokenCost)
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}
	s.logger.Log(ctx, level, string(e.Kind), attrs...)
}

type multi []Sink

func (m multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Memory keeps events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (m *Memory) Emit(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
