package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/lexdraft/chunking"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/runner"
	"github.com/sweetpotato0/lexdraft/stage"
)

// Separators placed between chunk drafts of the first and the complement
// pass.
const (
	SeparatorAdditional = "\n\n--- SEÇÃO ADICIONAL ---\n\n"
	SeparatorComplement = "\n\n--- COMPLEMENTO ---\n\n"
)

// SourceChunks marks a draft combined from chunk drafts.
const SourceChunks = "chunks"

// draftChunks drafts the most relevant chunks concurrently and joins the
// successful ones in priority order. When the first pass yields little text
// from fewer than two chunks, up to MaxComplementDrafts medium chunks are
// drafted as a complement. Individual failures are tolerated; the stage
// fails only when no chunk succeeds.
func (o *Orchestrator) draftChunks(ctx context.Context, r *run, in stage.DraftInput) (stage.Draft, int, error) {
	primary := pick(r.chunks, o.cfg.MaxChunkDrafts, chunking.PriorityCritical, chunking.PriorityHigh)
	if len(primary) == 0 {
		o.logger.WarnContext(ctx, "no critical or high chunks, drafting from the whole document", "run_id", r.id)
		d, err := o.drafter.Draft(ctx, in)
		if err != nil {
			return stage.Draft{}, 0, err
		}
		return d, draftCost(d), nil
	}

	first := o.fanOut(ctx, r, in, primary)
	combined := joinDrafts("", first.texts, SeparatorAdditional)
	cost := first.cost
	succeeded := len(first.texts)
	failures := first.errs

	if utf8.RuneCountInString(combined) < o.cfg.MinCombinedChars && succeeded < 2 {
		if medium := pick(r.chunks, o.cfg.MaxComplementDrafts, chunking.PriorityMedium); len(medium) > 0 {
			o.logger.InfoContext(ctx, "chunk drafts too short, drafting medium chunks",
				"run_id", r.id,
				"chars", utf8.RuneCountInString(combined),
				"medium", len(medium),
			)
			second := o.fanOut(ctx, r, in, medium)
			combined = joinDrafts(combined, second.texts, SeparatorComplement)
			cost += second.cost
			succeeded += len(second.texts)
			failures = append(failures, second.errs...)
		}
	}

	if err := ctx.Err(); err != nil {
		return stage.Draft{}, cost, errorskg.Cancelled(err)
	}
	if succeeded == 0 {
		return stage.Draft{}, cost, fmt.Errorf("all %d chunk drafts failed: %w", len(failures), errors.Join(failures...))
	}
	o.logger.InfoContext(ctx, "chunk drafts combined",
		"run_id", r.id,
		"succeeded", succeeded,
		"failed", len(failures),
		"chars", utf8.RuneCountInString(combined),
	)
	return stage.Draft{Text: combined, Source: SourceChunks}, cost, nil
}

type fanOutResult struct {
	texts []string
	errs  []error
	cost  int
}

// fanOut drafts chunks concurrently. Results stay in the order of chunks,
// whatever order the calls complete in.
func (o *Orchestrator) fanOut(ctx context.Context, r *run, in stage.DraftInput, chunks []chunking.Chunk) fanOutResult {
	tasks := make([]runner.Task[chunking.Chunk], len(chunks))
	for i, c := range chunks {
		tasks[i] = runner.Task[chunking.Chunk]{ID: c.ID, Input: c}
	}

	drafts := runner.RunParallel(ctx, o.fanout, tasks, func(ctx context.Context, c chunking.Chunk) (stage.Draft, error) {
		return o.drafter.DraftChunk(ctx, in, c)
	})

	var out fanOutResult
	for _, d := range drafts {
		if d.Error == nil {
			continue
		}
		o.logger.WarnContext(ctx, "chunk draft failed",
			"run_id", r.id,
			"chunk_id", d.TaskID,
			"priority", chunks[d.Index].Priority,
			"error", d.Error,
		)
		out.errs = append(out.errs, fmt.Errorf("chunk %s: %w", d.TaskID, d.Error))
	}
	for _, d := range runner.Succeeded(drafts) {
		out.texts = append(out.texts, d.Text)
		out.cost += chunkCost(d)
	}
	return out
}

// pick returns up to n chunks of the given priorities, keeping their order.
func pick(set *chunking.ChunkSet, n int, priorities ...chunking.Priority) []chunking.Chunk {
	out := set.ByPriority(priorities...)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func joinDrafts(combined string, texts []string, sep string) string {
	var b strings.Builder
	b.WriteString(combined)
	for _, t := range texts {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(t)
	}
	return b.String()
}
