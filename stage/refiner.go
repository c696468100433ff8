package stage

import (
	"context"
	"strings"

	"github.com/sweetpotato0/lexdraft/prompt"
)

type refiner struct {
	caller *Caller
}

// NewRefiner returns the Refiner shared by every document type.
func NewRefiner(c *Caller) Refiner {
	return &refiner{caller: c}
}

// Refine always returns a new Draft with the next revision number. An empty
// reply keeps the current text.
func (r *refiner) Refine(ctx context.Context, d Draft, e *Evaluation, style string) (Draft, error) {
	if e == nil {
		e = &Evaluation{}
	}
	ex, err := r.caller.Generate(ctx, NameRefinement, prompt.Refiner, map[string]interface{}{
		"Draft":       d.Text,
		"Score":       e.Score,
		"Strengths":   e.Strengths,
		"Gaps":        e.Gaps,
		"Errors":      e.Errors,
		"Suggestions": e.Suggestions,
		"Style":       style,
	})
	if err != nil {
		return Draft{}, err
	}

	next := Draft{Text: strings.TrimSpace(ex.Text), Revision: d.Revision + 1, PromptChars: len([]rune(ex.Prompt))}
	if next.Text == "" {
		r.caller.logger.WarnContext(ctx, "refiner returned empty text, keeping current draft", "revision", d.Revision)
		next.Text = d.Text
	}
	return next, nil
}
