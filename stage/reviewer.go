package stage

import (
	"context"
	"math"

	"github.com/sweetpotato0/lexdraft/prompt"
)

const (
	// MaxScore bounds every score.
	MaxScore = 10.0
	// neutralRubric fills rubric criteria the reviewer left out.
	neutralRubric = 5.0
)

// Rubric breaks a score down by criterion.
type Rubric struct {
	Structure    float64  `json:"structure"`
	Grounding    float64  `json:"grounding"`
	Completeness float64  `json:"completeness"`
	Precision    float64  `json:"precision"`
	Language     *float64 `json:"language,omitempty"`
}

// Evaluation is one review of a Draft. Score is always within [0, 10].
type Evaluation struct {
	Score            float64  `json:"score"`
	Strengths        []string `json:"strengths"`
	Gaps             []string `json:"gaps"`
	Errors           []string `json:"errors"`
	Suggestions      []string `json:"suggestions"`
	Rubric           Rubric   `json:"rubricBreakdown"`
	PendingChecklist []string `json:"pendingChecklist,omitempty"`
	Priorities       []string `json:"priorities,omitempty"`
	// Revision is the Draft revision the evaluation refers to.
	Revision int `json:"revision"`
}

// ClampScore limits s to [0, 10]; NaN becomes 0.
func ClampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(MaxScore, s))
}

type rubricWire struct {
	Structure    score `json:"estrutura"`
	Grounding    score `json:"fundamentacao"`
	Completeness score `json:"completude"`
	Precision    score `json:"precisao"`
	Language     score `json:"linguagem"`
}

func (w *rubricWire) rubric() Rubric {
	if w == nil {
		return Rubric{Structure: neutralRubric, Grounding: neutralRubric, Completeness: neutralRubric, Precision: neutralRubric}
	}
	orNeutral := func(n score) float64 {
		if !n.Set {
			return neutralRubric
		}
		return ClampScore(n.Value)
	}
	r := Rubric{
		Structure:    orNeutral(w.Structure),
		Grounding:    orNeutral(w.Grounding),
		Completeness: orNeutral(w.Completeness),
		Precision:    orNeutral(w.Precision),
	}
	if w.Language.Set {
		l := ClampScore(w.Language.Value)
		r.Language = &l
	}
	return r
}

// evaluationWire accepts both reviewer shapes: the credit claim one
// (score, pontosAbordados, qualidadeGeral) and the generic one
// (scoreGeral, pontosFortes, scores).
type evaluationWire struct {
	Score        score       `json:"score"`
	OverallScore score       `json:"scoreGeral"`
	Covered      stringList  `json:"pontosAbordados"`
	Strong       stringList  `json:"pontosFortes"`
	Missing      stringList  `json:"pontosFaltantes"`
	Weak         stringList  `json:"pontosFracos"`
	Errors       stringList  `json:"erros"`
	Suggestions  stringList  `json:"sugestoesMelhoria"`
	Checklist    stringList  `json:"checklistPendente"`
	Priorities   stringList  `json:"prioridades"`
	Quality      *rubricWire `json:"qualidadeGeral"`
	Scores       *rubricWire `json:"scores"`
}

// decodeEvaluation has no fallback: without a score the loop cannot decide
// whether to stop, so a malformed review is returned as an error.
func decodeEvaluation(raw string) Decoded[Evaluation] {
	w := decodeJSON[evaluationWire](raw)
	if !w.OK() {
		return Decoded[Evaluation]{Err: w.Err}
	}
	v := w.Value
	mark := v.Score
	if !mark.Set {
		mark = v.OverallScore
	}
	if !mark.Set {
		return malformed[Evaluation](raw, "missing score")
	}

	rubric := v.Quality
	if rubric == nil {
		rubric = v.Scores
	}
	out := &Evaluation{
		Score:            ClampScore(mark.Value),
		Strengths:        append(v.Covered, v.Strong...),
		Gaps:             append(append(v.Missing, v.Weak...), v.Checklist...),
		Errors:           v.Errors,
		Suggestions:      v.Suggestions,
		Rubric:           rubric.rubric(),
		PendingChecklist: v.Checklist,
		Priorities:       v.Priorities,
	}
	return Decoded[Evaluation]{Value: out}
}

type reviewer struct {
	caller   *Caller
	template string
}

// NewCreditReviewer returns the Reviewer for credit claims.
func NewCreditReviewer(c *Caller) Reviewer {
	return &reviewer{caller: c, template: prompt.ReviewerCredit}
}

// NewGenericReviewer returns the Reviewer used for any document type.
func NewGenericReviewer(c *Caller) Reviewer {
	return &reviewer{caller: c, template: prompt.ReviewerGeneric}
}

func (r *reviewer) Review(ctx context.Context, d Draft, p *Plan, a *Analysis) (*Evaluation, error) {
	var checklist []string
	if p != nil {
		checklist = p.MandatoryChecklist
	}
	ex, err := r.caller.Generate(ctx, NameReview, r.template, map[string]interface{}{
		"Draft":     d.Text,
		"Plan":      p,
		"Analysis":  a,
		"Checklist": checklist,
	})
	if err != nil {
		return nil, err
	}

	decoded := decodeEvaluation(ex.Text)
	if !decoded.OK() {
		return nil, decoded.Err
	}
	decoded.Value.Revision = d.Revision
	return decoded.Value, nil
}
