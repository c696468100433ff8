package pipeline

import (
	"log/slog"
	"math"
	"time"

	"github.com/sweetpotato0/lexdraft/audit"
	"github.com/sweetpotato0/lexdraft/cache"
	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

// Config controls the review loop and chunked drafting.
type Config struct {
	ScoreThreshold float64 // Score at or above which a draft is accepted
	MaxIterations  int     // Maximum number of reviews per run
	ExemplarCount  int     // Exemplars retrieved for the drafter

	MaxChunkDrafts      int // Critical and high chunks drafted concurrently
	MaxComplementDrafts int // Medium chunks drafted when the first pass is thin
	MinCombinedChars    int // Below this the complement pass may run
	ChunkConcurrency    int // Concurrent chunk calls
	MaxConcurrentRuns   int // Runs executing at once; later ones wait for a slot

	CacheTTL time.Duration // Zero uses the cache default
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold:      9.0,
		MaxIterations:       3,
		ExemplarCount:       3,
		MaxChunkDrafts:      3,
		MaxComplementDrafts: 2,
		MinCombinedChars:    1000,
		ChunkConcurrency:    3,
		MaxConcurrentRuns:   4,
	}
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the loop configuration. Non-positive counts keep
// their defaults. ScoreThreshold is taken as given in [0, 10]: zero accepts
// the first draft; a negative threshold keeps the default.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		def := DefaultConfig()
		if cfg.ScoreThreshold < 0 {
			cfg.ScoreThreshold = def.ScoreThreshold
		}
		cfg.ScoreThreshold = math.Min(cfg.ScoreThreshold, stage.MaxScore)
		if cfg.MaxIterations <= 0 {
			cfg.MaxIterations = def.MaxIterations
		}
		if cfg.ExemplarCount <= 0 {
			cfg.ExemplarCount = def.ExemplarCount
		}
		if cfg.MaxChunkDrafts <= 0 {
			cfg.MaxChunkDrafts = def.MaxChunkDrafts
		}
		if cfg.MaxComplementDrafts <= 0 {
			cfg.MaxComplementDrafts = def.MaxComplementDrafts
		}
		if cfg.MinCombinedChars <= 0 {
			cfg.MinCombinedChars = def.MinCombinedChars
		}
		if cfg.ChunkConcurrency <= 0 {
			cfg.ChunkConcurrency = def.ChunkConcurrency
		}
		if cfg.MaxConcurrentRuns <= 0 {
			cfg.MaxConcurrentRuns = def.MaxConcurrentRuns
		}
		o.cfg = cfg
	}
}

// WithScoreThreshold sets the acceptance score. Values outside [0, 10]
// are ignored.
func WithScoreThreshold(score float64) Option {
	return func(o *Orchestrator) {
		if score >= 0 && score <= stage.MaxScore {
			o.cfg.ScoreThreshold = score
		}
	}
}

// WithMaxIterations sets the maximum number of reviews.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.cfg.MaxIterations = n
		}
	}
}

// WithMaxConcurrentRuns bounds the runs executing at once.
func WithMaxConcurrentRuns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.cfg.MaxConcurrentRuns = n
		}
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.chunker = c
		}
	}
}

// WithRetriever enables exemplar retrieval.
func WithRetriever(r *similarity.Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithCache enables RunCached memoization.
func WithCache(c cache.Store[*Result]) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithAuditSink sets where stage events go.
func WithAuditSink(s audit.Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithRecorder persists every terminal run.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator replaces uuid run ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}
