package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

// Status is a state of the run state machine.
type Status string

const (
	StatusAnalyzing Status = "ANALYZING"
	StatusPlanning  Status = "PLANNING"
	StatusDrafting  Status = "DRAFTING"
	StatusReviewing Status = "REVIEWING"
	StatusRefining  Status = "REFINING"
	StatusConverged Status = "CONVERGED"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Request is one generation job.
type Request struct {
	Document     document.Document
	DocumentType string
	// AgentID owns the exemplars and, with Style, identifies the agent in
	// the cache key.
	AgentID string
	Style   string
	// Exemplars, when set, replace retrieval.
	Exemplars []similarity.Candidate
	// Strategy overrides the chunking strategy of the document type.
	Strategy *chunking.Strategy
}

// Result is a finished run. It is never modified after Run returns.
// RunCached hands out copies made with Clone; Analysis, Plan and ChunkSet
// are shared between copies and must be treated as read-only.
type Result struct {
	RunID        string                 `json:"runId"`
	Status       Status                 `json:"status"`
	DocumentType string                 `json:"documentType"`
	Analysis     *stage.Analysis        `json:"analysis"`
	Plan         *stage.Plan            `json:"plan"`
	FinalDraft   stage.Draft            `json:"finalDraft"`
	Drafts       []stage.Draft          `json:"drafts"`
	Evaluations  []*stage.Evaluation    `json:"evaluations"`
	Exemplars    []similarity.Candidate `json:"exemplars,omitempty"`
	ChunkSet     *chunking.ChunkSet     `json:"chunkSet,omitempty"`
	// IterationCount is the number of completed refinements.
	IterationCount int     `json:"iterationCount"`
	FinalScore     float64 `json:"finalScore"`
	// Certified is true when FinalScore reached the score threshold.
	Certified          bool     `json:"certified"`
	ElapsedMs          int64    `json:"elapsedMs"`
	OracleCostEstimate int      `json:"oracleCostEstimate"`
	Trace              []Status `json:"trace"`
}

// Clone returns a copy of r whose drafts, evaluations, exemplars and trace
// can be changed without affecting r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Drafts = slices.Clone(r.Drafts)
	c.Exemplars = slices.Clone(r.Exemplars)
	c.Trace = slices.Clone(r.Trace)
	if r.Evaluations != nil {
		c.Evaluations = make([]*stage.Evaluation, len(r.Evaluations))
		for i, e := range r.Evaluations {
			if e == nil {
				continue
			}
			ev := *e
			ev.Strengths = slices.Clone(e.Strengths)
			ev.Gaps = slices.Clone(e.Gaps)
			ev.Errors = slices.Clone(e.Errors)
			ev.Suggestions = slices.Clone(e.Suggestions)
			ev.PendingChecklist = slices.Clone(e.PendingChecklist)
			ev.Priorities = slices.Clone(e.Priorities)
			if l := e.Rubric.Language; l != nil {
				v := *l
				ev.Rubric.Language = &v
			}
			c.Evaluations[i] = &ev
		}
	}
	return &c
}

// RunRecord is handed to a RunRecorder when a run reaches a terminal state.
type RunRecord struct {
	RunID        string
	AgentID      string
	Fingerprint  string
	DocumentType string
	Status       Status
	// FailedStage names the stage of a FAILED run.
	FailedStage string
	Error       string
	Result      *Result
	StartedAt   time.Time
	Elapsed     time.Duration
}

// RunRecorder persists run history.
type RunRecorder interface {
	Record(ctx context.Context, rec RunRecord) error
}
