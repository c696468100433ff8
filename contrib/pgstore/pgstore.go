// Package pgstore keeps stage events and run history in PostgreSQL through
// a pgx connection pool.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweetpotato0/lexdraft/audit"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/pipeline"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS stage_events (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	stage       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	iteration   INT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	token_cost  INT NOT NULL DEFAULT 0,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_events_run ON stage_events(run_id, id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id        TEXT PRIMARY KEY,
	agent_id      TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL,
	document_type TEXT NOT NULL,
	status        TEXT NOT NULL,
	failed_stage  TEXT,
	error         TEXT,
	result        JSONB,
	started_at    TIMESTAMPTZ NOT NULL,
	elapsed_ms    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_agent ON pipeline_runs(agent_id, started_at DESC);
`

// Store is an audit.Sink and a pipeline.RunRecorder.
type Store struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for events that could not be written.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New connects to dsn.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithPool(pool, opts...), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{Pool: pool, logger: logging.WithComponent("pgstore")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// Emit implements audit.Sink. Write failures are logged, never returned to
// the pipeline.
func (s *Store) Emit(ctx context.Context, e audit.Event) {
	if err := s.InsertEvent(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "stage event not stored", "run_id", e.RunID, "stage", e.Stage, "error", err)
	}
}

// InsertEvent writes one stage event.
func (s *Store) InsertEvent(ctx context.Context, e audit.Event) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO stage_events(run_id, agent_id, stage, kind, iteration, duration_ms, token_cost, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), $9)`,
		e.RunID, e.AgentID, e.Stage, string(e.Kind), e.Iteration, e.Duration.Milliseconds(), e.TokenCost, e.Error, e.Time)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// Events returns the events of a run in emission order.
func (s *Store) Events(ctx context.Context, runID string) ([]audit.Event, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT run_id, agent_id, stage, kind, iteration, duration_ms, token_cost, COALESCE(error, ''), created_at
FROM stage_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e          audit.Event
			kind       string
			durationMs int64
		)
		if err := rows.Scan(&e.RunID, &e.AgentID, &e.Stage, &kind, &e.Iteration, &durationMs, &e.TokenCost, &e.Error, &e.Time); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Record implements pipeline.RunRecorder. A run id recorded twice keeps the
// latest outcome.
func (s *Store) Record(ctx context.Context, rec pipeline.RunRecord) error {
	var result []byte
	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = b
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO pipeline_runs(run_id, agent_id, fingerprint, document_type, status, failed_stage, error, result, started_at, elapsed_ms)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	failed_stage = EXCLUDED.failed_stage,
	error = EXCLUDED.error,
	result = EXCLUDED.result,
	elapsed_ms = EXCLUDED.elapsed_ms`,
		rec.RunID, rec.AgentID, rec.Fingerprint, rec.DocumentType, string(rec.Status),
		rec.FailedStage, rec.Error, result, rec.StartedAt, rec.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// Run loads a recorded run. Unknown ids return errors.ErrNotFound.
func (s *Store) Run(ctx context.Context, runID string) (*pipeline.RunRecord, error) {
	var (
		rec       pipeline.RunRecord
		status    string
		result    []byte
		elapsedMs int64
	)
	err := s.Pool.QueryRow(ctx, `
SELECT run_id, agent_id, fingerprint, document_type, status, COALESCE(failed_stage, ''), COALESCE(error, ''), result, started_at, elapsed_ms
FROM pipeline_runs WHERE run_id = $1`, runID).Scan(
		&rec.RunID, &rec.AgentID, &rec.Fingerprint, &rec.DocumentType, &status,
		&rec.FailedStage, &rec.Error, &result, &rec.StartedAt, &elapsedMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, errorskg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query pipeline run: %w", err)
	}
	rec.Status = pipeline.Status(status)
	rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	if len(result) > 0 {
		rec.Result = &pipeline.Result{}
		if err := json.Unmarshal(result, rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &rec, nil
}
