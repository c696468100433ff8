package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/stage"
	"github.com/sweetpotato0/lexdraft/tokenizer"
)

// Prompt overheads added to the drafting and refinement estimates, in
// tokens.
const (
	analysisSourceChars = 20000
	draftPromptTokens   = 2000
	refinePromptTokens  = 1500
)

// Oracle cost is an estimate in tokens, ceil(chars/4) per artifact.

func jsonTokens(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return tokenizer.Estimate(string(b))
}

func analysisCost(a *stage.Analysis, source string) int {
	r := []rune(source)
	if len(r) > analysisSourceChars {
		r = r[:analysisSourceChars]
	}
	return jsonTokens(a) + tokenizer.EstimateChars(len(r))
}

func planCost(p *stage.Plan, a *stage.Analysis) int {
	return jsonTokens(p) + jsonTokens(a)
}

func draftCost(d stage.Draft) int {
	return tokenizer.Estimate(d.Text) + draftPromptTokens
}

func chunkCost(d stage.Draft) int {
	return tokenizer.EstimateChars(d.PromptChars) + tokenizer.Estimate(d.Text)
}

func reviewCost(e *stage.Evaluation, d stage.Draft) int {
	return jsonTokens(e) + tokenizer.Estimate(d.Text)
}

func refineCost(d stage.Draft) int {
	return tokenizer.Estimate(d.Text) + refinePromptTokens
}

// CacheKey identifies a request in the result cache: the document
// fingerprint plus a hash of the agent, its style and the document type.
func CacheKey(req Request) string {
	docType := req.DocumentType
	if docType == "" {
		docType = document.TypeGeneric
	}
	h := sha256.New()
	for _, part := range []string{req.AgentID, req.Style, document.NormalizeType(docType)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fingerprint(req.Document) + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}
