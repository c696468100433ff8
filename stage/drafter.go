package stage

import (
	"context"
	"strings"

	"github.com/sweetpotato0/lexdraft/chunking"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/prompt"
)

type drafter struct {
	caller *Caller
}

// NewDrafter returns the Drafter shared by every document type.
func NewDrafter(c *Caller) Drafter {
	return &drafter{caller: c}
}

func (d *drafter) Draft(ctx context.Context, in DraftInput) (Draft, error) {
	var checklist []string
	if in.Plan != nil {
		checklist = in.Plan.MandatoryChecklist
	}
	ex, err := d.caller.Generate(ctx, NameDrafting, prompt.Drafter, map[string]interface{}{
		"Plan":      in.Plan,
		"Analysis":  in.Analysis,
		"Style":     in.Style,
		"Exemplars": in.Exemplars,
		"Document":  in.Document.Text,
		"Checklist": checklist,
	})
	if err != nil {
		return Draft{}, err
	}
	text := strings.TrimSpace(ex.Text)
	if text == "" {
		return Draft{}, &errorskg.MalformedOutputError{Raw: ex.Text, Reason: "empty draft"}
	}
	return Draft{Text: text, PromptChars: len([]rune(ex.Prompt))}, nil
}

func (d *drafter) DraftChunk(ctx context.Context, in DraftInput, c chunking.Chunk) (Draft, error) {
	var (
		parties, values, dates []string
		instructions           []string
	)
	if in.Analysis != nil {
		parties = in.Analysis.PartyNames()
		values = in.Analysis.Entities.MonetaryValues
		dates = in.Analysis.Entities.Dates
	}
	if len(parties) == 0 {
		parties = c.Entities.Parties
	}
	if len(c.Entities.MonetaryValues) > 0 {
		values = c.Entities.MonetaryValues
	}
	if len(c.Entities.Dates) > 0 {
		dates = c.Entities.Dates
	}
	if in.Plan != nil {
		instructions = in.Plan.MandatoryChecklist
	}

	ex, err := d.caller.Generate(ctx, NameDrafting, prompt.DrafterChunk, map[string]interface{}{
		"Style":          in.Style,
		"ContextSummary": in.ContextSummary,
		"DocumentType":   in.DocumentType,
		"Parties":        parties,
		"Values":         values,
		"Dates":          dates,
		"Instructions":   instructions,
		"Section":        c.Section,
		"Priority":       string(c.Priority),
		"Chunk":          c.Content,
	})
	if err != nil {
		return Draft{}, err
	}
	text := strings.TrimSpace(ex.Text)
	if text == "" {
		return Draft{}, &errorskg.MalformedOutputError{Raw: ex.Text, Reason: "empty draft for chunk " + c.ID}
	}
	return Draft{Text: text, Source: c.ID, PromptChars: len([]rune(ex.Prompt))}, nil
}
