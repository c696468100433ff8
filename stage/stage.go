// Package stage implements the oracle-backed steps of a generation run:
// analysis, planning, drafting, review and refinement.
//
// Every stage renders a prompt from the prompt package, sends it through a
// Caller (retry policy plus the oracle middleware chain) and decodes the
// reply. Malformed structured replies are replaced by documented fallbacks
// flagged as degraded, except for review scores which the loop cannot do
// without.
package stage

import (
	"context"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/similarity"
)

// Stage names, used for logging, audit events and StageError.
const (
	NameAnalysis   = "analysis"
	NamePlanning   = "planning"
	NameDrafting   = "drafting"
	NameReview     = "review"
	NameRefinement = "refinement"
)

type styleKey struct{}

// WithStyle attaches the agent's style guide to ctx for stages whose
// signature does not carry it.
func WithStyle(ctx context.Context, style string) context.Context {
	return context.WithValue(ctx, styleKey{}, style)
}

// StyleFrom returns the style guide set by WithStyle.
func StyleFrom(ctx context.Context) string {
	s, _ := ctx.Value(styleKey{}).(string)
	return s
}

// AnalysisInput is what the Analyst reads.
type AnalysisInput struct {
	Document     document.Document
	DocumentType string
	// Context replaces the document text in the prompt when the document
	// was chunked; it holds the relevant chunks only.
	Context string
}

// Text returns the text handed to the oracle.
func (in AnalysisInput) Text() string {
	if in.Context != "" {
		return in.Context
	}
	return in.Document.Text
}

// Analyst extracts an Analysis from a document.
type Analyst interface {
	Analyze(ctx context.Context, in AnalysisInput) (*Analysis, error)
}

// Planner turns an Analysis into a Plan.
type Planner interface {
	Plan(ctx context.Context, a *Analysis) (*Plan, error)
}

// Reviewer scores a Draft against its Plan and Analysis.
type Reviewer interface {
	Review(ctx context.Context, d Draft, p *Plan, a *Analysis) (*Evaluation, error)
}

// DraftInput is everything the Drafter may use.
type DraftInput struct {
	Document       document.Document
	DocumentType   string
	Analysis       *Analysis
	Plan           *Plan
	Style          string
	Exemplars      []similarity.Candidate
	ContextSummary string
}

// Drafter writes the first Draft, either from the whole document or one
// chunk at a time.
type Drafter interface {
	Draft(ctx context.Context, in DraftInput) (Draft, error)
	DraftChunk(ctx context.Context, in DraftInput, c chunking.Chunk) (Draft, error)
}

// Refiner produces a new Draft addressing an Evaluation.
type Refiner interface {
	Refine(ctx context.Context, d Draft, e *Evaluation, style string) (Draft, error)
}

// Draft is one version of the generated text. Refinement returns a new value.
type Draft struct {
	Text     string `json:"text"`
	Revision int    `json:"revision"`
	// Source names the chunk a partial draft came from.
	Source string `json:"source,omitempty"`
	// PromptChars is the size of the prompt that produced the draft.
	PromptChars int `json:"-"`
}
