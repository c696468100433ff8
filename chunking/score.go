package chunking

import (
	"math"
	"strings"
)

// ScoreWeights tunes relevance scoring. Every contribution is additive and
// the total is clamped to [0,1].
type ScoreWeights struct {
	Base float64
	Kind map[Kind]float64

	Party    float64
	Value    float64
	Date     float64
	LegalRef float64
	// EntityCap bounds the bonus of each entity category.
	EntityCap float64

	Keyword    float64
	KeywordCap float64

	// Position is added when a chunk touches the first or last
	// PositionWindow fraction of the document.
	Position       float64
	PositionWindow float64
}

// DefaultWeights keeps type, entity, keyword and position signals in
// separate bands so that scores spread over all four priorities.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Base: 0.5,
		Kind: map[Kind]float64{
			KindConclusion: 0.2,
			KindBody:       0.1,
			KindHeader:     0.05,
			KindAttachment: 0,
		},
		Party:          0.02,
		Value:          0.03,
		Date:           0.01,
		LegalRef:       0.02,
		EntityCap:      0.1,
		Keyword:        0.03,
		KeywordCap:     0.15,
		Position:       0.1,
		PositionWindow: 0.2,
	}
}

// Score computes the relevance of c within a document of docLen bytes.
func (w ScoreWeights) Score(c Chunk, docLen int, keywords []string) float64 {
	score := w.Base + w.Kind[c.Kind]

	e := c.Entities
	score += capped(float64(len(e.Parties))*w.Party, w.EntityCap)
	score += capped(float64(len(e.MonetaryValues))*w.Value, w.EntityCap)
	score += capped(float64(len(e.Dates))*w.Date, w.EntityCap)
	score += capped(float64(len(e.LegalReferences))*w.LegalRef, w.EntityCap)

	body := strings.ToLower(c.Body())
	matches := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(body, strings.ToLower(kw)) {
			matches++
		}
	}
	score += capped(float64(matches)*w.Keyword, w.KeywordCap)

	if docLen > 0 {
		window := w.PositionWindow * float64(docLen)
		if float64(c.Start) < window || float64(c.End) > float64(docLen)-window {
			score += w.Position
		}
	}

	score = math.Round(score*1e4) / 1e4
	return math.Max(0, math.Min(1, score))
}

func capped(v, limit float64) float64 {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// classify derives the chunk kind from its section title and first line.
func classify(section, body string) Kind {
	sec := strings.ToLower(section)
	if strings.Contains(sec, "cabeçalho") || strings.Contains(sec, "preâmbulo") {
		return KindHeader
	}
	head := sec + " " + strings.ToLower(firstLine(body))
	switch {
	case strings.Contains(head, "conclus") || strings.Contains(head, "dispositivo"):
		return KindConclusion
	case strings.Contains(head, "anexo") || strings.Contains(head, "documento"):
		return KindAttachment
	}
	return KindBody
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
