package similarity

import (
	"fmt"
	"math"
	"strings"

	"github.com/sweetpotato0/lexdraft/document"
)

const (
	weightType           = 0.4
	weightValue          = 0.2
	weightClassification = 0.2
	weightDivergent      = 0.1
	weightParties        = 0.05
	weightComplexity     = 0.05

	// floorScore keeps exemplars of the same agent retrievable when no
	// criterion matched.
	floorScore = 0.1
)

// Value bands used to compare monetary magnitudes.
const (
	BandVeryLow  = "very_low"
	BandLow      = "low"
	BandMedium   = "medium"
	BandHigh     = "high"
	BandVeryHigh = "very_high"
)

// ValueBand buckets a monetary value.
func ValueBand(v float64) string {
	switch {
	case v < 1000:
		return BandVeryLow
	case v < 10000:
		return BandLow
	case v < 50000:
		return BandMedium
	case v < 100000:
		return BandHigh
	}
	return BandVeryHigh
}

// Score computes the weighted similarity of an exemplar's facts to the
// current case, with the reasons behind every contribution. The result is
// in [0,1]; a case with no matching criterion scores 0.1 with reason
// "same agent".
func Score(current, exemplar Case) (float64, []string) {
	var (
		score   float64
		reasons []string
	)

	cur := document.NormalizeType(current.DocumentType)
	ex := document.NormalizeType(exemplar.DocumentType)
	switch {
	case cur != "" && ex != "" && cur == ex:
		score += weightType
		reasons = append(reasons, fmt.Sprintf("same type (%s)", exemplar.DocumentType))
	case cur != "" && ex != "" && strings.Contains(cur, strings.Fields(ex)[0]):
		score += weightType / 2
		reasons = append(reasons, "similar type")
	}

	if current.PrimaryValue > 0 && exemplar.PrimaryValue > 0 {
		a, b := ValueBand(current.PrimaryValue), ValueBand(exemplar.PrimaryValue)
		switch {
		case a == b:
			score += weightValue
			reasons = append(reasons, fmt.Sprintf("same value band (%s)", a))
		case math.Abs(math.Log10(current.PrimaryValue)-math.Log10(exemplar.PrimaryValue)) < 1:
			score += weightValue / 2
			reasons = append(reasons, "similar value")
		}
	}

	if current.Classification != "" && exemplar.Classification != "" &&
		strings.EqualFold(current.Classification, exemplar.Classification) {
		score += weightClassification
		reasons = append(reasons, fmt.Sprintf("same classification (%s)", current.Classification))
	}

	if current.Divergent && exemplar.Divergent {
		score += weightDivergent
		reasons = append(reasons, "divergent calculations")
	}
	if current.PartyCount > 0 && current.PartyCount == exemplar.PartyCount {
		score += weightParties
		reasons = append(reasons, fmt.Sprintf("same party count (%d)", current.PartyCount))
	}
	if current.IssueCount > 0 && exemplar.IssueCount > 0 && abs(current.IssueCount-exemplar.IssueCount) <= 1 {
		score += weightComplexity
		reasons = append(reasons, "similar complexity")
	}

	score = math.Max(0, math.Min(1, score))
	if score == 0 {
		return floorScore, []string{"same agent"}
	}
	return score, reasons
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
