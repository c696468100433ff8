package stage

import (
	"math"
	"strings"

	"github.com/sweetpotato0/lexdraft/entity"
	"github.com/sweetpotato0/lexdraft/similarity"
)

// Verification statuses of ComputedFigures.
const (
	StatusCorrect       = "CORRETO"
	StatusDivergent     = "DIVERGENTE"
	StatusIncomplete    = "INCOMPLETO"
	StatusNotVerifiable = "NAO_VERIFICAVEL"
)

// Party is a participant of the case.
type Party struct {
	Name           string `json:"name"`
	Role           string `json:"role,omitempty"`
	TaxID          string `json:"taxId,omitempty"`
	Representation string `json:"representation,omitempty"`
	CaseNumber     string `json:"caseNumber,omitempty"`
}

// Figure is one monetary figure the oracle was asked to recompute.
type Figure struct {
	Rate      string   `json:"rate,omitempty"`
	Period    string   `json:"period,omitempty"`
	Presented *float64 `json:"presented,omitempty"`
	Computed  *float64 `json:"computed,omitempty"`
	// Correct is nil when the figure could not be verified.
	Correct    *bool   `json:"correct,omitempty"`
	Divergence float64 `json:"divergence,omitempty"`
}

// verify recomputes Correct and Divergence when both values are present.
func (f *Figure) verify() {
	if f == nil || f.Presented == nil || f.Computed == nil {
		return
	}
	diff := *f.Presented - *f.Computed
	correct := math.Abs(diff) < 0.01
	f.Correct = &correct
	if correct {
		f.Divergence = 0
	} else {
		f.Divergence = math.Round(diff*100) / 100
	}
}

func (f *Figure) divergent() bool {
	return f != nil && f.Correct != nil && !*f.Correct
}

// ComputedFigures holds the recomputed amounts of the case.
type ComputedFigures struct {
	Status       string   `json:"status,omitempty"`
	Details      string   `json:"details,omitempty"`
	CorrectValue *float64 `json:"correctValue,omitempty"`
	Principal    *float64 `json:"principal,omitempty"`
	Interest     *Figure  `json:"interest,omitempty"`
	Correction   *Figure  `json:"correction,omitempty"`
	Total        *Figure  `json:"total,omitempty"`
}

func (c *ComputedFigures) verify() {
	divergent, verified := false, false
	for _, f := range []*Figure{c.Interest, c.Correction, c.Total} {
		f.verify()
		if f != nil && f.Correct != nil {
			verified = true
			divergent = divergent || !*f.Correct
		}
	}
	// Recomputed figures overrule the reported status; INCOMPLETO and
	// NAO_VERIFICAVEL stand unless a figure is actually divergent.
	switch {
	case divergent:
		c.Status = StatusDivergent
	case verified && (c.Status == "" || c.Status == StatusDivergent):
		c.Status = StatusCorrect
	}
	if c.CorrectValue == nil && c.Total.divergent() && c.Total.Computed != nil {
		v := *c.Total.Computed
		c.CorrectValue = &v
	}
}

// Classification is the legal classification of the case.
type Classification struct {
	Type         string `json:"type,omitempty"`
	Article      string `json:"article,omitempty"`
	Grounds      string `json:"grounds,omitempty"`
	AppealType   string `json:"appealType,omitempty"`
	ActionNature string `json:"actionNature,omitempty"`
}

// Label returns the most specific classification present.
func (c *Classification) Label() string {
	if c == nil {
		return ""
	}
	for _, s := range []string{c.Type, c.AppealType, c.ActionNature} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Analysis is the structured extraction of one document.
type Analysis struct {
	DocumentType   string          `json:"documentType"`
	Parties        []Party         `json:"parties,omitempty"`
	Entities       entity.Set      `json:"entities"`
	Figures        ComputedFigures `json:"computedFigures"`
	Classification *Classification `json:"legalClassification,omitempty"`
	// OpenIssues are the legal questions the manifestation must address.
	OpenIssues             []string          `json:"openIssues"`
	AttentionPoints        []string          `json:"attentionPoints,omitempty"`
	ApplicableLaw          []string          `json:"applicableLaw"`
	Requests               []string          `json:"requests,omitempty"`
	Evidence               []string          `json:"evidence,omitempty"`
	Dates                  []string          `json:"dates,omitempty"`
	ProceduralRequirements map[string]string `json:"proceduralRequirements,omitempty"`
	MissingInformation     []string          `json:"missingInformation"`
	// Degraded marks a fallback built because the oracle reply was unusable.
	Degraded bool `json:"degraded,omitempty"`
}

// Verify recomputes every figure carrying both a presented and a computed
// value and derives the verification status.
func (a *Analysis) Verify() {
	a.Figures.verify()
}

// Divergent reports whether the total was found incorrect.
func (a *Analysis) Divergent() bool {
	return a.Figures.Total.divergent()
}

// PrimaryValue is the best known figure of the case: the computed total,
// the presented total, the principal, or the largest amount in the text.
func (a *Analysis) PrimaryValue() float64 {
	if t := a.Figures.Total; t != nil {
		if t.Computed != nil && *t.Computed > 0 {
			return *t.Computed
		}
		if t.Presented != nil && *t.Presented > 0 {
			return *t.Presented
		}
	}
	if p := a.Figures.Principal; p != nil && *p > 0 {
		return *p
	}
	return a.Entities.PrimaryValue()
}

// Case summarizes the analysis for exemplar retrieval.
func (a *Analysis) Case() similarity.Case {
	parties := len(a.Parties)
	if parties == 0 {
		parties = len(a.Entities.Parties)
	}
	return similarity.Case{
		DocumentType:   a.DocumentType,
		PrimaryValue:   a.PrimaryValue(),
		Classification: a.Classification.Label(),
		Divergent:      a.Divergent(),
		PartyCount:     parties,
		IssueCount:     len(a.OpenIssues),
	}
}

// PartyNames lists party names, falling back to the regex-extracted ones.
func (a *Analysis) PartyNames() []string {
	var names []string
	for _, p := range a.Parties {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		names = append(names, a.Entities.Parties...)
	}
	return names
}
