package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/lexdraft/audit"
	"github.com/sweetpotato0/lexdraft/cache"
	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/oracle"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
	"github.com/sweetpotato0/lexdraft/retry"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

type fakeAnalyst struct {
	calls atomic.Int32
	err   error
	// block, when set, holds every call until it is closed.
	block  chan struct{}
	active atomic.Int32
	peak   atomic.Int32

	mu     sync.Mutex
	inputs []stage.AnalysisInput
}

func (f *fakeAnalyst) Analyze(ctx context.Context, in stage.AnalysisInput) (*stage.Analysis, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for p := f.peak.Load(); n > p && !f.peak.CompareAndSwap(p, n); p = f.peak.Load() {
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &stage.Analysis{
		DocumentType: in.DocumentType,
		Parties:      []stage.Party{{Name: "Fornecedora Alfa Ltda", Role: "habilitante"}},
		OpenIssues:   []string{"tempestividade"},
	}, nil
}

type fakePlanner struct{}

func (fakePlanner) Plan(ctx context.Context, a *stage.Analysis) (*stage.Plan, error) {
	return &stage.Plan{Sections: []stage.Section{{ID: "I_RELATORIO", Title: "I. RELATÓRIO"}}}, nil
}

// fakeReviewer returns scores in order and repeats the last one.
type fakeReviewer struct {
	mu     sync.Mutex
	scores []float64
	calls  int
	err    error
}

func (f *fakeReviewer) Review(ctx context.Context, d stage.Draft, p *stage.Plan, a *stage.Analysis) (*stage.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	score := f.scores[min(f.calls, len(f.scores)-1)]
	f.calls++
	return &stage.Evaluation{Score: score, Gaps: []string{"fundamentação incompleta"}, Revision: d.Revision}, nil
}

type chunkReply struct {
	text  string
	err   error
	delay time.Duration
}

type fakeDrafter struct {
	mu         sync.Mutex
	inputs     []stage.DraftInput
	chunkCalls []string
	chunks     map[string]chunkReply
	// anyChunk answers chunks missing from chunks with "parte <id>".
	anyChunk bool
	onChunk  func()
}

func (f *fakeDrafter) Draft(ctx context.Context, in stage.DraftInput) (stage.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return stage.Draft{Text: "rascunho inicial", PromptChars: 400}, nil
}

func (f *fakeDrafter) DraftChunk(ctx context.Context, in stage.DraftInput, c chunking.Chunk) (stage.Draft, error) {
	f.mu.Lock()
	f.chunkCalls = append(f.chunkCalls, c.ID)
	r, ok := f.chunks[c.ID]
	if !ok && f.anyChunk {
		r, ok = chunkReply{text: "parte " + c.ID}, true
	}
	onChunk := f.onChunk
	f.mu.Unlock()
	if onChunk != nil {
		onChunk()
	}
	if !ok {
		return stage.Draft{}, fmt.Errorf("unexpected chunk %s", c.ID)
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return stage.Draft{}, r.err
	}
	return stage.Draft{Text: r.text, PromptChars: 80}, nil
}

type fakeRefiner struct {
	mu       sync.Mutex
	scores   []float64
	onRefine func()
}

func (f *fakeRefiner) Refine(ctx context.Context, d stage.Draft, e *stage.Evaluation, style string) (stage.Draft, error) {
	f.mu.Lock()
	f.scores = append(f.scores, e.Score)
	f.mu.Unlock()
	if f.onRefine != nil {
		f.onRefine()
	}
	return stage.Draft{Text: fmt.Sprintf("rascunho revisado %d", d.Revision+1), Revision: d.Revision + 1}, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []RunRecord
}

func (m *memoryRecorder) Record(ctx context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryRecorder) all() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunRecord(nil), m.records...)
}

type fixture struct {
	analyst  *fakeAnalyst
	reviewer *fakeReviewer
	drafter  *fakeDrafter
	refiner  *fakeRefiner
}

func newFixture(scores ...float64) *fixture {
	return &fixture{
		analyst:  &fakeAnalyst{},
		reviewer: &fakeReviewer{scores: scores},
		drafter:  &fakeDrafter{},
		refiner:  &fakeRefiner{},
	}
}

func (f *fixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	registry := stage.NewRegistry(stage.Agents{Analyst: f.analyst, Planner: fakePlanner{}, Reviewer: f.reviewer})
	base := []Option{WithLogger(logging.Discard()), WithIDGenerator(func() string { return "run-1" })}
	o, err := NewOrchestrator(registry, f.drafter, f.refiner, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

func testRequest() Request {
	return Request{
		Document: document.New("Habilitação de crédito apresentada por Fornecedora Alfa Ltda " +
			"no processo 1000123-45.2024.8.26.0100, no valor de R$ 69.600,00."),
		DocumentType: document.TypeGeneric,
		AgentID:      "agent-1",
		Style:        "formal",
	}
}

func TestRunConvergesOnFirstReview(t *testing.T) {
	f := newFixture(9.2)
	o := f.orchestrator(t)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, 0, res.IterationCount)
	assert.Equal(t, 9.2, res.FinalScore)
	assert.True(t, res.Certified)
	assert.Len(t, res.Evaluations, 1)
	assert.Len(t, res.Drafts, 1)
	assert.Equal(t, "rascunho inicial", res.FinalDraft.Text)
	assert.Equal(t, []Status{StatusAnalyzing, StatusPlanning, StatusDrafting, StatusReviewing, StatusConverged, StatusDone}, res.Trace)
	assert.Positive(t, res.OracleCostEstimate)
	assert.Empty(t, f.refiner.scores)
}

func TestRunRefinesUntilBudgetSpent(t *testing.T) {
	f := newFixture(6.0, 7.5, 8.0)
	o := f.orchestrator(t)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, 2, res.IterationCount)
	assert.Equal(t, 8.0, res.FinalScore)
	assert.False(t, res.Certified)
	require.Len(t, res.Evaluations, 3)
	require.Len(t, res.Drafts, 3)
	for i, d := range res.Drafts {
		assert.Equal(t, i, d.Revision)
		assert.Equal(t, i, res.Evaluations[i].Revision)
	}
	assert.Equal(t, "rascunho revisado 2", res.FinalDraft.Text)
	assert.Equal(t, []float64{6.0, 7.5}, f.refiner.scores)
	assert.Equal(t, []Status{
		StatusAnalyzing, StatusPlanning, StatusDrafting,
		StatusReviewing, StatusRefining,
		StatusReviewing, StatusRefining,
		StatusReviewing, StatusConverged, StatusDone,
	}, res.Trace)
}

func TestRunConvergesAfterRefinement(t *testing.T) {
	f := newFixture(7.0, 9.0)
	o := f.orchestrator(t)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.IterationCount)
	assert.Equal(t, 9.0, res.FinalScore)
	assert.True(t, res.Certified)
	assert.Len(t, res.Evaluations, 2)
}

func TestRunHonoursConfiguredLoop(t *testing.T) {
	f := newFixture(6.0)
	o := f.orchestrator(t, WithMaxIterations(1), WithScoreThreshold(5.5))

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, res.IterationCount)
	assert.True(t, res.Certified)
	assert.Equal(t, 1, o.Config().MaxIterations)

	f = newFixture(3.0)
	o = f.orchestrator(t, WithMaxIterations(1))
	res, err = o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, res.IterationCount)
	assert.False(t, res.Certified)
	assert.Len(t, res.Evaluations, 1)
}

func TestRunClampsReviewScore(t *testing.T) {
	f := newFixture(14)
	res, err := f.orchestrator(t).Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.FinalScore)
}

func TestRunRejectsEmptyDocument(t *testing.T) {
	f := newFixture(9.5)
	rec := &memoryRecorder{}
	o := f.orchestrator(t, WithRecorder(rec))

	_, err := o.Run(context.Background(), Request{Document: document.New("   "), AgentID: "agent-1"})
	require.ErrorIs(t, err, errorskg.ErrInvalidInput)
	assert.Zero(t, f.analyst.calls.Load())
	assert.Empty(t, rec.all())
}

func TestRunRejectsInvalidStrategy(t *testing.T) {
	f := newFixture(9.5)
	req := testRequest()
	req.Strategy = &chunking.Strategy{Name: "broken"}

	_, err := f.orchestrator(t).Run(context.Background(), req)
	require.ErrorIs(t, err, errorskg.ErrInvalidInput)
}

func TestRunReportsFailedStage(t *testing.T) {
	f := newFixture(9.5)
	f.reviewer.err = errors.New("reviewer offline")
	rec := &memoryRecorder{}
	events := &audit.Memory{}
	o := f.orchestrator(t, WithRecorder(rec), WithAuditSink(events))

	res, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errorskg.ErrStageFailure)

	var se *errorskg.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.NameReview, se.Stage)
	assert.Contains(t, err.Error(), "reviewer offline")

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, stage.NameReview, records[0].FailedStage)
	assert.Nil(t, records[0].Result)

	all := events.Events()
	last := all[len(all)-1]
	assert.Equal(t, audit.KindStageError, last.Kind)
	assert.Equal(t, stage.NameReview, last.Stage)
	assert.Equal(t, 1, last.Iteration)
}

func TestRunEmitsStageEvents(t *testing.T) {
	f := newFixture(6.0, 9.5)
	events := &audit.Memory{}
	o := f.orchestrator(t, WithAuditSink(events))

	_, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	type step struct {
		stage     string
		kind      audit.Kind
		iteration int
	}
	var got []step
	for _, e := range events.Events() {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "agent-1", e.AgentID)
		got = append(got, step{e.Stage, e.Kind, e.Iteration})
	}
	assert.Equal(t, []step{
		{stage.NameAnalysis, audit.KindStageStart, 0},
		{stage.NameAnalysis, audit.KindStageComplete, 0},
		{stage.NamePlanning, audit.KindStageStart, 0},
		{stage.NamePlanning, audit.KindStageComplete, 0},
		{stage.NameDrafting, audit.KindStageStart, 0},
		{stage.NameDrafting, audit.KindStageComplete, 0},
		{stage.NameReview, audit.KindStageStart, 1},
		{stage.NameReview, audit.KindStageComplete, 1},
		{stage.NameRefinement, audit.KindStageStart, 1},
		{stage.NameRefinement, audit.KindStageComplete, 1},
		{stage.NameReview, audit.KindStageStart, 2},
		{stage.NameReview, audit.KindStageComplete, 2},
	}, got)

	var cost int
	for _, e := range events.Events() {
		cost += e.TokenCost
	}
	assert.Positive(t, cost)
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(5.0)
	f.refiner.onRefine = cancel
	rec := &memoryRecorder{}
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	o := f.orchestrator(t, WithRecorder(rec), WithCache(c))

	res, hit, err := o.RunCached(ctx, testRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, hit)
	assert.ErrorIs(t, err, errorskg.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errorskg.ErrStageFailure)

	// The refined draft is never reviewed.
	assert.Equal(t, 1, f.reviewer.calls)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StatusCancelled, records[0].Status)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Size)
}

func TestRunUsesExemplars(t *testing.T) {
	ctx := context.Background()
	store := similarity.NewMemoryStore()
	require.NoError(t, store.Save(ctx, similarity.Exemplar{
		ID:        "ex-1",
		AgentID:   "agent-1",
		Text:      "Manifestação anterior",
		Facts:     similarity.Case{DocumentType: "generic", PartyCount: 1},
		Processed: true,
	}))

	f := newFixture(9.5)
	o := f.orchestrator(t, WithRetriever(similarity.NewRetriever(store, similarity.WithLogger(logging.Discard()))))

	res, err := o.Run(ctx, testRequest())
	require.NoError(t, err)
	require.Len(t, res.Exemplars, 1)
	assert.Equal(t, "ex-1", res.Exemplars[0].ExemplarID)
	require.Len(t, f.drafter.inputs, 1)
	assert.Equal(t, res.Exemplars, f.drafter.inputs[0].Exemplars)
	assert.Equal(t, "formal", f.drafter.inputs[0].Style)
}

func TestRunRequestExemplarsSkipRetrieval(t *testing.T) {
	ctx := context.Background()
	store := similarity.NewMemoryStore()
	require.NoError(t, store.Save(ctx, similarity.Exemplar{ID: "ex-1", AgentID: "agent-1", Processed: true}))

	f := newFixture(9.5)
	o := f.orchestrator(t, WithRetriever(similarity.NewRetriever(store, similarity.WithLogger(logging.Discard()))))

	req := testRequest()
	req.Exemplars = []similarity.Candidate{}
	res, err := o.Run(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.Exemplars)
}

func TestRunCachedServesHits(t *testing.T) {
	f := newFixture(9.5)
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	o := f.orchestrator(t, WithCache(c))
	ctx := context.Background()

	first, hit, err := o.RunCached(ctx, testRequest())
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := o.RunCached(ctx, testRequest())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 1, f.analyst.calls.Load())

	other := testRequest()
	other.Style = "conciso"
	_, hit, err = o.RunCached(ctx, other)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.EqualValues(t, 2, f.analyst.calls.Load())
}

func TestRunCachedCallersCannotAlterCachedResult(t *testing.T) {
	f := newFixture(9.5)
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	o := f.orchestrator(t, WithCache(c))
	ctx := context.Background()

	first, _, err := o.RunCached(ctx, testRequest())
	require.NoError(t, err)
	first.FinalScore = 1
	first.FinalDraft.Text = "alterado"
	first.Trace[0] = StatusFailed
	first.Drafts[0].Text = "alterado"
	first.Evaluations[0].Gaps[0] = "alterado"

	second, hit, err := o.RunCached(ctx, testRequest())
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 9.5, second.FinalScore)
	assert.Equal(t, "rascunho inicial", second.FinalDraft.Text)
	assert.Equal(t, StatusAnalyzing, second.Trace[0])
	assert.Equal(t, "rascunho inicial", second.Drafts[0].Text)
	assert.Equal(t, "fundamentação incompleta", second.Evaluations[0].Gaps[0])
}

func TestRunCachedConcurrentRequests(t *testing.T) {
	f := newFixture(9.5)
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	o := f.orchestrator(t, WithCache(c))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = o.RunCached(ctx, testRequest())
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusDone, results[i].Status)
	}
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Size)

	cached, ok, err := c.Get(ctx, CacheKey(testRequest()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, results, cached)
}

func TestRunFailsWhenOracleUnavailable(t *testing.T) {
	var attempts atomic.Int32
	llm := oracle.Func(func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		attempts.Add(1)
		return "", oracle.Wrap("stub", 503, errors.New("model overloaded"))
	})
	caller := stage.NewCaller(llm,
		stage.WithPolicy(retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}),
		stage.WithLogger(logging.Discard()),
	)
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	rec := &memoryRecorder{}
	o, err := New(caller, WithCache(c), WithRecorder(rec), WithLogger(logging.Discard()))
	require.NoError(t, err)

	res, hit, err := o.RunCached(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, hit)
	assert.ErrorIs(t, err, errorskg.ErrStageFailure)
	assert.ErrorIs(t, err, errorskg.ErrRetriesExhausted)

	var se *errorskg.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.NameAnalysis, se.Stage)
	assert.EqualValues(t, 4, attempts.Load())

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Size)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, stage.NameAnalysis, records[0].FailedStage)
}

func TestNewOrchestratorRequiresStages(t *testing.T) {
	_, err := NewOrchestrator(nil, &fakeDrafter{}, &fakeRefiner{})
	assert.ErrorIs(t, err, errorskg.ErrInvalidInput)

	_, err = NewOrchestrator(stage.NewRegistry(stage.Agents{}), nil, &fakeRefiner{})
	assert.ErrorIs(t, err, errorskg.ErrInvalidInput)

	_, err = New(nil)
	assert.ErrorIs(t, err, errorskg.ErrInvalidInput)
}

func TestWithConfigKeepsDefaults(t *testing.T) {
	f := newFixture(9.5)
	o := f.orchestrator(t, WithConfig(Config{ScoreThreshold: 8, MaxIterations: 5}))

	cfg := o.Config()
	def := DefaultConfig()
	assert.Equal(t, 8.0, cfg.ScoreThreshold)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, def.ExemplarCount, cfg.ExemplarCount)
	assert.Equal(t, def.MaxChunkDrafts, cfg.MaxChunkDrafts)
	assert.Equal(t, def.MaxComplementDrafts, cfg.MaxComplementDrafts)
	assert.Equal(t, def.MinCombinedChars, cfg.MinCombinedChars)
	assert.Equal(t, def.MaxConcurrentRuns, cfg.MaxConcurrentRuns)
}

func TestZeroThresholdAcceptsFirstDraft(t *testing.T) {
	f := newFixture(2.0)
	o := f.orchestrator(t, WithConfig(Config{ScoreThreshold: 0, MaxIterations: 3}))
	assert.Zero(t, o.Config().ScoreThreshold)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, res.IterationCount)
	assert.True(t, res.Certified)
	assert.Empty(t, f.refiner.scores)

	o = newFixture(9.5).orchestrator(t, WithScoreThreshold(0))
	assert.Zero(t, o.Config().ScoreThreshold)
	o = newFixture(9.5).orchestrator(t, WithScoreThreshold(-1), WithScoreThreshold(11))
	assert.Equal(t, DefaultConfig().ScoreThreshold, o.Config().ScoreThreshold)
	o = newFixture(9.5).orchestrator(t, WithConfig(Config{ScoreThreshold: -2}))
	assert.Equal(t, DefaultConfig().ScoreThreshold, o.Config().ScoreThreshold)
}

func TestRunsWaitForAFreeSlot(t *testing.T) {
	f := newFixture(9.5)
	f.analyst.block = make(chan struct{})
	o := f.orchestrator(t, WithMaxConcurrentRuns(1))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Run(context.Background(), testRequest())
		}(i)
	}

	require.Eventually(t, func() bool { return f.analyst.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, f.analyst.calls.Load(), "queued runs must not start")

	close(f.analyst.block)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, f.analyst.calls.Load())
	assert.EqualValues(t, 1, f.analyst.peak.Load())
}

func TestRunCancelledWhileWaitingForSlot(t *testing.T) {
	f := newFixture(9.5)
	f.analyst.block = make(chan struct{})
	rec := &memoryRecorder{}
	o := f.orchestrator(t, WithMaxConcurrentRuns(1), WithRecorder(rec))

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), testRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.analyst.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := o.Run(ctx, testRequest())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errorskg.ErrCancelled)
	assert.NotErrorIs(t, err, errorskg.ErrStageFailure)
	assert.EqualValues(t, 1, f.analyst.calls.Load())

	close(f.analyst.block)
	require.NoError(t, <-done)

	records := rec.all()
	require.Len(t, records, 2)
	assert.Equal(t, StatusCancelled, records[0].Status)
	assert.Equal(t, StatusDone, records[1].Status)
}

func sequentialChunkIDs() chunking.Option {
	n := 0
	return chunking.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("c%d", n)
	})
}

const creditPetition = "EXCELENTÍSSIMO SENHOR JUIZ DE DIREITO\n" +
	"Requerente: Construtora Alfa Ltda\n\n" +
	"DOS FATOS\n" +
	"A requerente forneceu materiais de construção à devedora no valor de R$ 50.000,00 em 10/01/2023.\n\n" +
	"DO DIREITO\n" +
	"O crédito é quirografário nos termos do art. 83, VI, da Lei nº 11.101/2005.\n\n" +
	"DO PEDIDO\n" +
	"Requer a habilitação do crédito de R$ 69.600,00.\n"

func chunkedRequest() Request {
	s := chunking.StrategyFor(document.TypeCreditClaim)
	s.MaxTokensPerChunk = 50
	s.OverlapTokens = 5
	s.MaxTotalTokens = 100
	return Request{
		Document:     document.New(creditPetition),
		DocumentType: document.TypeCreditClaim,
		AgentID:      "agent-1",
		Strategy:     &s,
	}
}

func TestRunChunkedDocumentEndToEnd(t *testing.T) {
	req := chunkedRequest()
	reference := chunking.New(sequentialChunkIDs())
	want := reference.Chunk(req.Document, req.DocumentType, *req.Strategy)
	require.True(t, want.Chunked())
	primary := pick(want, DefaultConfig().MaxChunkDrafts, chunking.PriorityCritical, chunking.PriorityHigh)
	require.NotEmpty(t, primary)

	f := newFixture(9.5)
	f.drafter.anyChunk = true
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	o := f.orchestrator(t, WithChunker(chunking.New(sequentialChunkIDs())), WithCache(c))

	res, hit, err := o.RunCached(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, hit)

	require.Len(t, f.analyst.inputs, 1)
	analysisCtx := f.analyst.inputs[0].Context
	assert.NotEmpty(t, analysisCtx)
	assert.Equal(t, want.Context(req.Strategy.MaxTotalTokens, reference.CountTokens), analysisCtx)

	var ids, texts []string
	for _, ch := range primary {
		ids = append(ids, ch.ID)
		texts = append(texts, "parte "+ch.ID)
	}
	assert.ElementsMatch(t, ids, f.drafter.chunkCalls)
	assert.Empty(t, f.drafter.inputs, "chunked documents are not drafted whole")
	assert.Equal(t, SourceChunks, res.FinalDraft.Source)
	assert.Equal(t, strings.Join(texts, SeparatorAdditional), res.FinalDraft.Text)
	require.NotNil(t, res.ChunkSet)
	assert.Equal(t, want.Method, res.ChunkSet.Method)
	assert.Equal(t, StatusDone, res.Status)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Size)
}

func TestRunCachedCancelledDuringChunkFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(9.5)
	f.drafter.anyChunk = true
	f.drafter.onChunk = cancel
	c := cache.New[*Result](cache.WithLogger(logging.Discard()))
	rec := &memoryRecorder{}
	o := f.orchestrator(t, WithChunker(chunking.New(sequentialChunkIDs())), WithCache(c), WithRecorder(rec))

	res, hit, err := o.RunCached(ctx, chunkedRequest())
	assert.Nil(t, res)
	assert.False(t, hit)
	assert.ErrorIs(t, err, errorskg.ErrCancelled)
	assert.NotErrorIs(t, err, errorskg.ErrStageFailure)
	assert.NotEmpty(t, f.drafter.chunkCalls)
	assert.Zero(t, f.reviewer.calls)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Size)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StatusCancelled, records[0].Status)
}

func chunkSet(chunks ...chunking.Chunk) *chunking.ChunkSet {
	return &chunking.ChunkSet{Method: chunking.MethodStructural, Chunks: chunks, Prioritized: chunks}
}

func chunk(id string, p chunking.Priority) chunking.Chunk {
	return chunking.Chunk{ID: id, Content: "conteúdo " + id, Priority: p}
}

func TestDraftChunksKeepsPriorityOrder(t *testing.T) {
	f := newFixture(9.5)
	f.drafter.chunks = map[string]chunkReply{
		"c1": {text: "parte um", delay: 30 * time.Millisecond},
		"c2": {text: "parte dois", delay: 10 * time.Millisecond},
		"c3": {text: "parte três"},
	}
	o := f.orchestrator(t)
	r := &run{id: "r", chunks: chunkSet(
		chunk("c1", chunking.PriorityCritical),
		chunk("c2", chunking.PriorityHigh),
		chunk("c3", chunking.PriorityHigh),
		chunk("c4", chunking.PriorityHigh),
		chunk("m1", chunking.PriorityMedium),
	)}

	d, cost, err := o.draftChunks(context.Background(), r, stage.DraftInput{})
	require.NoError(t, err)
	assert.Equal(t, "parte um"+SeparatorAdditional+"parte dois"+SeparatorAdditional+"parte três", d.Text)
	assert.Equal(t, SourceChunks, d.Source)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, f.drafter.chunkCalls)

	want := chunkCost(stage.Draft{Text: "parte um", PromptChars: 80}) +
		chunkCost(stage.Draft{Text: "parte dois", PromptChars: 80}) +
		chunkCost(stage.Draft{Text: "parte três", PromptChars: 80})
	assert.Equal(t, want, cost)
}

func TestDraftChunksComplementsThinDraft(t *testing.T) {
	f := newFixture(9.5)
	f.drafter.chunks = map[string]chunkReply{
		"c1": {text: "curto"},
		"c2": {err: errors.New("boom")},
		"m1": {text: "médio um"},
		"m2": {text: "médio dois"},
		"m3": {text: "médio três"},
	}
	o := f.orchestrator(t)
	r := &run{id: "r", chunks: chunkSet(
		chunk("c1", chunking.PriorityCritical),
		chunk("c2", chunking.PriorityHigh),
		chunk("m1", chunking.PriorityMedium),
		chunk("m2", chunking.PriorityMedium),
		chunk("m3", chunking.PriorityMedium),
	)}

	d, _, err := o.draftChunks(context.Background(), r, stage.DraftInput{})
	require.NoError(t, err)
	assert.Equal(t, "curto"+SeparatorComplement+"médio um"+SeparatorComplement+"médio dois", d.Text)
	assert.NotContains(t, f.drafter.chunkCalls, "m3")
}

func TestDraftChunksSkipsComplementForLongDraft(t *testing.T) {
	f := newFixture(9.5)
	f.drafter.chunks = map[string]chunkReply{
		"c1": {text: strings.Repeat("a", 1200)},
		"m1": {text: "médio"},
	}
	o := f.orchestrator(t)
	r := &run{id: "r", chunks: chunkSet(chunk("c1", chunking.PriorityCritical), chunk("m1", chunking.PriorityMedium))}

	d, _, err := o.draftChunks(context.Background(), r, stage.DraftInput{})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 1200), d.Text)
	assert.Equal(t, []string{"c1"}, f.drafter.chunkCalls)
}

func TestDraftChunksFailsWhenNothingSucceeds(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(9.5)
	f.drafter.chunks = map[string]chunkReply{"c1": {err: boom}, "c2": {err: boom}}
	o := f.orchestrator(t)
	r := &run{id: "r", chunks: chunkSet(chunk("c1", chunking.PriorityCritical), chunk("c2", chunking.PriorityHigh))}

	_, _, err := o.draftChunks(context.Background(), r, stage.DraftInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "all 2 chunk drafts failed")
}

func TestDraftChunksFallsBackToWholeDocument(t *testing.T) {
	f := newFixture(9.5)
	o := f.orchestrator(t)
	r := &run{id: "r", chunks: chunkSet(chunk("m1", chunking.PriorityMedium), chunk("l1", chunking.PriorityLow))}

	d, cost, err := o.draftChunks(context.Background(), r, stage.DraftInput{})
	require.NoError(t, err)
	assert.Equal(t, "rascunho inicial", d.Text)
	assert.Equal(t, draftCost(d), cost)
	assert.Empty(t, f.drafter.chunkCalls)
	assert.Len(t, f.drafter.inputs, 1)
}

func TestCacheKey(t *testing.T) {
	base := testRequest()
	assert.Equal(t, CacheKey(base), CacheKey(testRequest()))
	assert.True(t, strings.HasPrefix(CacheKey(base), document.Fingerprint(base.Document.Text)+":"))

	accented := base
	accented.DocumentType = "Habilitação de Crédito"
	plain := base
	plain.DocumentType = "habilitacao de credito"
	assert.Equal(t, CacheKey(accented), CacheKey(plain))

	empty := base
	empty.DocumentType = ""
	assert.Equal(t, CacheKey(base), CacheKey(empty))

	for _, change := range []func(*Request){
		func(r *Request) { r.AgentID = "agent-2" },
		func(r *Request) { r.Style = "conciso" },
		func(r *Request) { r.Document = document.New("outro documento") },
	} {
		other := base
		change(&other)
		assert.NotEqual(t, CacheKey(base), CacheKey(other))
	}
}

func TestCostEstimates(t *testing.T) {
	assert.Equal(t, 1+draftPromptTokens, draftCost(stage.Draft{Text: "abcd"}))
	assert.Equal(t, 2+refinePromptTokens, refineCost(stage.Draft{Text: "abcde"}))
	assert.Equal(t, 25+2, chunkCost(stage.Draft{Text: "abcdefgh", PromptChars: 100}))

	// Only the first 20000 characters of the source count.
	long := strings.Repeat("a", 30000)
	assert.Equal(t, analysisCost(nil, long[:20000]), analysisCost(nil, long))
	assert.Equal(t, 1+5000, analysisCost(nil, long))
}
