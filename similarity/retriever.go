package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// Retriever ranks an agent's exemplars against a case.
type Retriever struct {
	store  Store
	logger *slog.Logger
}

// Option customises the retriever.
type Option func(*Retriever)

// WithLogger sets the retriever's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetriever creates a retriever over store.
func NewRetriever(store Store, opts ...Option) *Retriever {
	r := &Retriever{store: store, logger: logging.WithComponent("similarity")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindSimilar scores every processed exemplar of agentID against c and
// returns the topK best, highest first. Ties keep the store's newest-first
// order. The result is empty only when the agent has no exemplars.
func (r *Retriever) FindSimilar(ctx context.Context, agentID string, c Case, topK int) ([]Candidate, error) {
	exemplars, err := r.store.List(ctx, agentID, 0)
	if err != nil {
		return nil, fmt.Errorf("list exemplars: %w", err)
	}
	if len(exemplars) == 0 {
		r.logger.DebugContext(ctx, "no exemplars", "agent_id", agentID)
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(exemplars))
	for _, ex := range exemplars {
		score, reasons := Score(c, ex.Facts)
		candidates = append(candidates, candidateFrom(ex, score, reasons))
	}
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	for i, cand := range candidates {
		r.logger.DebugContext(ctx, "exemplar selected",
			"rank", i+1,
			"exemplar_id", cand.ExemplarID,
			"similarity", cand.Similarity,
			"reasons", cand.MatchReasons,
		)
	}
	return candidates, nil
}

// FindRecent returns the agent's n newest exemplars with a decreasing
// synthetic score (0.3, 0.25, ... floored at 0.01) used only for ordering.
func (r *Retriever) FindRecent(ctx context.Context, agentID string, n int) ([]Candidate, error) {
	exemplars, err := r.store.List(ctx, agentID, n)
	if err != nil {
		return nil, fmt.Errorf("list exemplars: %w", err)
	}
	out := make([]Candidate, 0, len(exemplars))
	for i, ex := range exemplars {
		score := math.Max(0.01, 0.3-0.05*float64(i))
		out = append(out, candidateFrom(ex, score, []string{"recent exemplar"}))
	}
	r.logger.DebugContext(ctx, "recent exemplars", "agent_id", agentID, "count", len(out))
	return out, nil
}

// Find runs FindSimilar and falls back to FindRecent when it comes back empty.
func (r *Retriever) Find(ctx context.Context, agentID string, c Case, topK int) ([]Candidate, error) {
	out, err := r.FindSimilar(ctx, agentID, c, topK)
	if err != nil || len(out) > 0 {
		return out, err
	}
	return r.FindRecent(ctx, agentID, topK)
}

func candidateFrom(ex Exemplar, score float64, reasons []string) Candidate {
	return Candidate{
		ExemplarID:   ex.ID,
		FileName:     ex.FileName,
		ExemplarText: ex.Text,
		Similarity:   score,
		MatchReasons: reasons,
	}
}
