package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetpotato0/lexdraft/audit"
	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/graph"
	"github.com/sweetpotato0/lexdraft/pkg/telemetry"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

const runKey = "__pipeline_run"

// run is the mutable state of one Run call. Only the goroutine executing
// the graph touches it.
type run struct {
	id      string
	req     Request
	docType string
	agents  stage.Agents
	start   time.Time

	status      Status
	trace       []Status
	failedStage string

	chunks     *chunking.ChunkSet
	analysis   *stage.Analysis
	plan       *stage.Plan
	exemplars  []similarity.Candidate
	draft      stage.Draft
	drafts     []stage.Draft
	evals      []*stage.Evaluation
	iterations int
	cost       int
	threshold  float64
}

func newRun(id string, req Request, registry *stage.Registry) *run {
	docType := req.DocumentType
	if docType == "" {
		docType = document.TypeGeneric
	}
	return &run{
		id:      id,
		req:     req,
		docType: docType,
		agents:  registry.Resolve(docType),
		start:   time.Now(),
	}
}

func (r *run) enter(s Status) {
	r.status = s
	r.trace = append(r.trace, s)
}

func (r *run) lastEvaluation() *stage.Evaluation {
	if len(r.evals) == 0 {
		return nil
	}
	return r.evals[len(r.evals)-1]
}

func (r *run) result() *Result {
	res := &Result{
		RunID:              r.id,
		Status:             r.status,
		DocumentType:       r.docType,
		Analysis:           r.analysis,
		Plan:               r.plan,
		FinalDraft:         r.draft,
		Drafts:             r.drafts,
		Evaluations:        r.evals,
		Exemplars:          r.exemplars,
		ChunkSet:           r.chunks,
		IterationCount:     r.iterations,
		ElapsedMs:          time.Since(r.start).Milliseconds(),
		OracleCostEstimate: r.cost,
		Trace:              r.trace,
	}
	if e := r.lastEvaluation(); e != nil {
		res.FinalScore = e.Score
		res.Certified = e.Score >= r.threshold
	}
	return res
}

func runFrom(state graph.State) (*run, error) {
	raw, ok := state[runKey]
	if !ok {
		return nil, fmt.Errorf("run state missing in graph")
	}
	r, ok := raw.(*run)
	if !ok {
		return nil, fmt.Errorf("invalid run state type %T", raw)
	}
	return r, nil
}

// step runs fn as one stage: it records the state, opens a span, emits
// start/complete/error audit events and adds fn's token cost to the run.
func (o *Orchestrator) step(ctx context.Context, r *run, name string, status Status, fn func(ctx context.Context) (int, error)) error {
	r.enter(status)
	var iteration int
	switch status {
	case StatusReviewing:
		iteration = len(r.evals) + 1
	case StatusRefining:
		iteration = r.iterations + 1
	}
	ctx, span := telemetry.Start(ctx, o.tracer, "pipeline."+name, "run_id", r.id, "stage", name)

	ev := audit.Event{RunID: r.id, AgentID: r.req.AgentID, Stage: name, Iteration: iteration}
	ev.Kind, ev.Time = audit.KindStageStart, time.Now()
	o.sink.Emit(ctx, ev)

	start := time.Now()
	cost, err := fn(ctx)
	r.cost += cost

	ev.Duration, ev.TokenCost, ev.Time = time.Since(start), cost, time.Now()
	if err != nil {
		err = errorskg.NewStageError(name, err)
		ev.Kind, ev.Error = audit.KindStageError, err.Error()
		o.sink.Emit(ctx, ev)
		telemetry.End(span, err)
		return err
	}
	ev.Kind = audit.KindStageComplete
	o.sink.Emit(ctx, ev)
	telemetry.Annotate(span, "iteration", iteration, "token_cost", cost)
	telemetry.End(span, nil)
	return nil
}

func (o *Orchestrator) analyzeNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	r.threshold = o.cfg.ScoreThreshold

	strategy := chunking.StrategyFor(r.docType)
	if r.req.Strategy != nil {
		strategy = *r.req.Strategy
	}
	r.chunks = o.chunker.Chunk(r.req.Document, r.docType, strategy)

	in := stage.AnalysisInput{Document: r.req.Document, DocumentType: r.docType}
	if r.chunks.Chunked() {
		in.Context = r.chunks.Context(strategy.MaxTotalTokens, o.chunker.CountTokens)
		o.logger.DebugContext(ctx, "analysis uses relevant chunks",
			"run_id", r.id,
			"method", r.chunks.Method,
			"chunks", len(r.chunks.Chunks),
			"relevant", len(r.chunks.Relevant()),
		)
	}

	err = o.step(ctx, r, stage.NameAnalysis, StatusAnalyzing, func(ctx context.Context) (int, error) {
		a, err := r.agents.Analyst.Analyze(ctx, in)
		if err != nil {
			return 0, err
		}
		r.analysis = a
		if a.Degraded {
			o.logger.WarnContext(ctx, "analysis degraded to fallback", "run_id", r.id)
		}
		return analysisCost(a, in.Text()), nil
	})
	return state, err
}

func (o *Orchestrator) planNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	err = o.step(ctx, r, stage.NamePlanning, StatusPlanning, func(ctx context.Context) (int, error) {
		p, err := r.agents.Planner.Plan(ctx, r.analysis)
		if err != nil {
			return 0, err
		}
		r.plan = p
		return planCost(p, r.analysis), nil
	})
	return state, err
}

func (o *Orchestrator) draftNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	err = o.step(ctx, r, stage.NameDrafting, StatusDrafting, func(ctx context.Context) (int, error) {
		r.exemplars = o.exemplars(ctx, r)
		in := stage.DraftInput{
			Document:       r.req.Document,
			DocumentType:   r.docType,
			Analysis:       r.analysis,
			Plan:           r.plan,
			Style:          r.req.Style,
			Exemplars:      r.exemplars,
			ContextSummary: r.chunks.ContextSummary,
		}

		var (
			d    stage.Draft
			cost int
			err  error
		)
		if r.chunks.Chunked() {
			d, cost, err = o.draftChunks(ctx, r, in)
		} else {
			d, err = o.drafter.Draft(ctx, in)
			cost = draftCost(d)
		}
		if err != nil {
			return 0, err
		}
		r.draft = d
		r.drafts = append(r.drafts, d)
		return cost, nil
	})
	return state, err
}

// exemplars returns the request's exemplars or retrieves them. Retrieval
// problems leave the drafter without exemplars rather than failing the run.
func (o *Orchestrator) exemplars(ctx context.Context, r *run) []similarity.Candidate {
	if r.req.Exemplars != nil || o.retriever == nil {
		return r.req.Exemplars
	}
	found, err := o.retriever.Find(ctx, r.req.AgentID, r.analysis.Case(), o.cfg.ExemplarCount)
	if err != nil {
		o.logger.WarnContext(ctx, "exemplar retrieval failed, drafting without exemplars", "run_id", r.id, "error", err)
		return nil
	}
	return found
}

func (o *Orchestrator) reviewNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	err = o.step(ctx, r, stage.NameReview, StatusReviewing, func(ctx context.Context) (int, error) {
		e, err := r.agents.Reviewer.Review(ctx, r.draft, r.plan, r.analysis)
		if err != nil {
			return 0, err
		}
		e.Score = stage.ClampScore(e.Score)
		r.evals = append(r.evals, e)
		o.logger.InfoContext(ctx, "draft reviewed",
			"run_id", r.id,
			"review", len(r.evals),
			"max_reviews", o.cfg.MaxIterations,
			"score", e.Score,
		)
		return reviewCost(e, r.draft), nil
	})
	return state, err
}

// convergeGate accepts the draft once it reaches the threshold or once the
// review budget is spent, and asks for a refinement otherwise.
func (o *Orchestrator) convergeGate(ctx context.Context, state graph.State) (string, error) {
	r, err := runFrom(state)
	if err != nil {
		return "", err
	}
	last := r.lastEvaluation()
	if last == nil {
		return "", fmt.Errorf("no evaluation to converge on")
	}
	switch {
	case last.Score >= o.cfg.ScoreThreshold:
		return branchConverged, nil
	case len(r.evals) >= o.cfg.MaxIterations:
		o.logger.WarnContext(ctx, "review budget spent, accepting best effort",
			"run_id", r.id,
			"score", last.Score,
			"threshold", o.cfg.ScoreThreshold,
		)
		return branchExhausted, nil
	}
	return branchRefine, nil
}

func (o *Orchestrator) refineNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	err = o.step(ctx, r, stage.NameRefinement, StatusRefining, func(ctx context.Context) (int, error) {
		d, err := o.refiner.Refine(ctx, r.draft, r.lastEvaluation(), r.req.Style)
		if err != nil {
			return 0, err
		}
		r.draft = d
		r.drafts = append(r.drafts, d)
		r.iterations++
		return refineCost(d), nil
	})
	return state, err
}

func (o *Orchestrator) doneNode(ctx context.Context, state graph.State) (graph.State, error) {
	r, err := runFrom(state)
	if err != nil {
		return state, err
	}
	r.enter(StatusConverged)
	r.enter(StatusDone)
	return state, nil
}
