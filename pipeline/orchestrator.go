// Package pipeline drives a generation run: analysis, planning, drafting,
// then review and refinement until the draft scores at least the threshold
// or the review budget is spent.
//
// The run is a graph.Graph state machine:
//
//	analyze -> plan -> draft -> review -> converge? --converged/exhausted--> done
//	                              ^                  \--refine--> refine --/
//
// Stages run strictly in sequence. The only concurrency inside a run is the
// chunk fan-out of the draft stage. Config.MaxConcurrentRuns bounds how many
// runs one Orchestrator executes at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/lexdraft/audit"
	"github.com/sweetpotato0/lexdraft/cache"
	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/graph"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
	"github.com/sweetpotato0/lexdraft/pkg/telemetry"
	"github.com/sweetpotato0/lexdraft/runner"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

// Graph node names.
const (
	nodeAnalyze  = "analyze"
	nodePlan     = "plan"
	nodeDraft    = "draft"
	nodeReview   = "review"
	nodeConverge = "converge"
	nodeRefine   = "refine"
	nodeDone     = "done"
)

// Branches of the converge node.
const (
	branchConverged = "converged"
	branchExhausted = "exhausted"
	branchRefine    = "refine"
)

// Orchestrator runs the generation pipeline. It is safe for concurrent use;
// each Run has its own state.
type Orchestrator struct {
	registry  *stage.Registry
	drafter   stage.Drafter
	refiner   stage.Refiner
	chunker   *chunking.Chunker
	retriever *similarity.Retriever
	cache     cache.Store[*Result]
	sink      audit.Sink
	recorder  RunRecorder
	runs      runner.Runner
	fanout    *runner.ParallelRunner
	graph     *graph.Graph
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
	newID     func() string
}

// NewOrchestrator wires the stages into the run graph.
func NewOrchestrator(registry *stage.Registry, drafter stage.Drafter, refiner stage.Refiner, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: stage registry is required", errorskg.ErrInvalidInput)
	}
	if drafter == nil || refiner == nil {
		return nil, fmt.Errorf("%w: drafter and refiner are required", errorskg.ErrInvalidInput)
	}

	o := &Orchestrator{
		registry: registry,
		drafter:  drafter,
		refiner:  refiner,
		chunker:  chunking.New(),
		sink:     audit.Discard,
		cfg:      DefaultConfig(),
		logger:   logging.WithComponent("pipeline"),
		tracer:   telemetry.Tracer("pipeline"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runs = runner.New(o.cfg.MaxConcurrentRuns)
	o.fanout = runner.NewParallelRunner(o.cfg.ChunkConcurrency)

	o.graph = graph.NewBuilder().
		AddNode(nodeAnalyze, graph.NodeTypeStart, o.analyzeNode).
		AddNode(nodePlan, graph.NodeTypeStage, o.planNode).
		AddNode(nodeDraft, graph.NodeTypeStage, o.draftNode).
		AddNode(nodeReview, graph.NodeTypeStage, o.reviewNode).
		AddConditionNode(nodeConverge, o.convergeGate, map[string]string{
			branchConverged: nodeDone,
			branchExhausted: nodeDone,
			branchRefine:    nodeRefine,
		}).
		AddNode(nodeRefine, graph.NodeTypeStage, o.refineNode).
		AddNode(nodeDone, graph.NodeTypeEnd, o.doneNode).
		AddEdge(nodeAnalyze, nodePlan).
		AddEdge(nodePlan, nodeDraft).
		AddEdge(nodeDraft, nodeReview).
		AddEdge(nodeReview, nodeConverge).
		AddEdge(nodeRefine, nodeReview).
		SetMaxVisits(o.cfg.MaxIterations + 1).
		Observe(o.observe).
		Build()

	o.logger.Info("orchestrator initialised",
		"score_threshold", o.cfg.ScoreThreshold,
		"max_iterations", o.cfg.MaxIterations,
		"retriever", o.retriever != nil,
		"cache", o.cache != nil,
	)
	return o, nil
}

// New builds an orchestrator over the default stages sharing caller.
func New(caller *stage.Caller, opts ...Option) (*Orchestrator, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: caller is required", errorskg.ErrInvalidInput)
	}
	return NewOrchestrator(stage.DefaultRegistry(caller), stage.NewDrafter(caller), stage.NewRefiner(caller), opts...)
}

// Config returns the effective loop configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Run executes the pipeline once. Failures return a *errors.StageError
// naming the stage; cancellation returns an error matching
// errors.ErrCancelled. Neither returns a partial result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Document.IsEmpty() {
		return nil, fmt.Errorf("%w: document is empty", errorskg.ErrInvalidInput)
	}
	if req.Strategy != nil {
		if err := req.Strategy.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", errorskg.ErrInvalidInput, err)
		}
	}

	r := newRun(o.newID(), req, o.registry)
	ctx = stage.WithStyle(ctx, req.Style)
	ctx, span := telemetry.Start(ctx, o.tracer, "pipeline.run",
		"run_id", r.id,
		"agent_id", req.AgentID,
		"document_type", r.docType,
	)
	logger := o.logger.With("run_id", r.id)
	logger.InfoContext(ctx, "pipeline run started",
		"document_type", r.docType,
		"specialized", o.registry.Specialized(r.docType),
		"chars", len([]rune(req.Document.Text)),
	)

	_, err := o.runs.RunGraph(ctx, o.graph, graph.State{runKey: r})
	if err != nil {
		err = o.fail(ctx, r, err)
		telemetry.End(span, err)
		logger.ErrorContext(ctx, "pipeline run ended", "status", r.status, "stage", r.failedStage, "error", err)
		o.record(ctx, r, nil, err)
		return nil, err
	}

	res := r.result()
	telemetry.Annotate(span,
		"iterations", res.IterationCount,
		"final_score", res.FinalScore,
		"certified", res.Certified,
		"oracle_cost", res.OracleCostEstimate,
	)
	telemetry.End(span, nil)
	logger.InfoContext(ctx, "pipeline run completed",
		"iterations", res.IterationCount,
		"final_score", res.FinalScore,
		"certified", res.Certified,
		"elapsed_ms", res.ElapsedMs,
		"oracle_cost", res.OracleCostEstimate,
	)
	o.record(ctx, r, res, nil)
	return res, nil
}

// RunCached returns the cached result for the request's document and agent
// when present, otherwise runs the pipeline and caches a DONE result. The
// boolean reports a cache hit. Cache errors are logged and bypassed.
// Callers get their own Clone of the cached value.
func (o *Orchestrator) RunCached(ctx context.Context, req Request) (*Result, bool, error) {
	if o.cache == nil {
		res, err := o.Run(ctx, req)
		return res, false, err
	}

	key := CacheKey(req)
	if res, ok, err := o.cache.Get(ctx, key); err != nil {
		o.logger.WarnContext(ctx, "cache lookup failed", "key", key, "error", err)
	} else if ok {
		o.logger.InfoContext(ctx, "pipeline result served from cache", "key", key)
		return res.Clone(), true, nil
	}

	res, err := o.Run(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if err := o.cache.Set(ctx, key, res, o.cfg.CacheTTL); err != nil {
		o.logger.WarnContext(ctx, "cache store failed", "key", key, "error", err)
	}
	return res.Clone(), false, nil
}

// fail settles the terminal state of a run that did not finish and returns
// the error the caller sees.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) error {
	if ctx.Err() != nil || errors.Is(err, errorskg.ErrCancelled) {
		r.enter(StatusCancelled)
		if errors.Is(err, errorskg.ErrCancelled) {
			return err
		}
		return errorskg.Cancelled(ctx.Err())
	}

	r.enter(StatusFailed)
	var se *errorskg.StageError
	if errors.As(err, &se) {
		r.failedStage = se.Stage
		return se
	}
	r.failedStage = "orchestration"
	return errorskg.NewStageError(r.failedStage, err)
}

func (o *Orchestrator) record(ctx context.Context, r *run, res *Result, err error) {
	if o.recorder == nil {
		return
	}
	rec := RunRecord{
		RunID:        r.id,
		AgentID:      r.req.AgentID,
		Fingerprint:  fingerprint(r.req.Document),
		DocumentType: r.docType,
		Status:       r.status,
		FailedStage:  r.failedStage,
		Result:       res,
		StartedAt:    r.start,
		Elapsed:      time.Since(r.start),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// A cancelled run still gets its history row.
	if rerr := o.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		o.logger.WarnContext(ctx, "run history not recorded", "run_id", r.id, "error", rerr)
	}
}

func (o *Orchestrator) observe(ctx context.Context, tr graph.Transition) {
	attrs := []any{"node", tr.Node, "visit", tr.Visit, "duration", tr.Duration}
	if tr.Branch != "" {
		attrs = append(attrs, "branch", tr.Branch)
	}
	if tr.Next != "" {
		attrs = append(attrs, "next", tr.Next)
	}
	if tr.Err != nil {
		attrs = append(attrs, "error", tr.Err)
	}
	o.logger.DebugContext(ctx, "pipeline transition", attrs...)
}

func fingerprint(d document.Document) string {
	if d.Fingerprint != "" {
		return d.Fingerprint
	}
	return document.Fingerprint(d.Text)
}
