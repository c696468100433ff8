package stage

import (
	"bytes"
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Stances a plan may take.
const (
	StanceFavorable = "FAVORÁVEL"
	StanceContrary  = "CONTRÁRIO"
	StancePartial   = "PARCIALMENTE FAVORÁVEL"
	StanceNeutral   = "NEUTRO"
)

// Section is one heading of the planned manifestation.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SectionContent is what a section must say.
type SectionContent struct {
	Points        []string `json:"points"`
	SupportingLaw []string `json:"supportingLaw,omitempty"`
	Conclusion    string   `json:"conclusion,omitempty"`
	CorrectValue  *float64 `json:"correctValue,omitempty"`
	Stance        string   `json:"stance,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// UnmarshalJSON accepts the planner's section object or a bare list of
// points.
func (c *SectionContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && (data[0] == '[' || data[0] == '"') {
		var points stringList
		if err := json.Unmarshal(data, &points); err != nil {
			return err
		}
		*c = SectionContent{Points: points}
		return nil
	}
	var w struct {
		Points        stringList `json:"pontos"`
		SupportingLaw stringList `json:"fundamentacao"`
		Conclusion    text       `json:"conclusao"`
		CorrectValue  number     `json:"valorCorreto"`
		Stance        text       `json:"posicionamento"`
		Notes         text       `json:"observacoes"`
		Data          stringList `json:"dados"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = SectionContent{
		Points:        append(w.Points, w.Data...),
		SupportingLaw: w.SupportingLaw,
		Conclusion:    w.Conclusion.String(),
		CorrectValue:  w.CorrectValue.ptr(),
		Stance:        strings.ToUpper(w.Stance.String()),
		Notes:         w.Notes.String(),
	}
	return nil
}

// Plan is the outline the Drafter follows and the Reviewer checks against.
// ContentPerSection only holds ids present in Sections.
type Plan struct {
	Sections           []Section                 `json:"sections"`
	ContentPerSection  map[string]SectionContent `json:"contentPerSection"`
	MandatoryChecklist []string                  `json:"mandatoryChecklist"`
	EssentialElements  []string                  `json:"essentialElements,omitempty"`
	Stance             string                    `json:"stance,omitempty"`
	StanceGrounds      string                    `json:"stanceGrounds,omitempty"`
	Caveats            []string                  `json:"caveats,omitempty"`
	Degraded           bool                      `json:"degraded,omitempty"`
}

// Titles returns the section titles in order.
func (p *Plan) Titles() []string {
	out := make([]string, len(p.Sections))
	for i, s := range p.Sections {
		out[i] = s.Title
	}
	return out
}

var (
	nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)
	romanRe  = regexp.MustCompile(`^([IVXLC]+)(?:_|$)`)
)

// foldAccents strips combining marks: "RELATÓRIO" becomes "RELATORIO".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SectionID derives the id of a section title: "I. RELATÓRIO" becomes
// "I_RELATORIO".
func SectionID(title string) string {
	id := strings.ToUpper(foldAccents(strings.TrimSpace(title)))
	id = nonAlnum.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

func romanPrefix(id string) string {
	if m := romanRe.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return ""
}

// normalize builds section ids and re-keys content to them. Content keys
// matching no section, either exactly or by roman numeral, are returned as
// dropped.
func (p *Plan) normalize(titles []string, content map[string]SectionContent) (dropped []string) {
	p.Sections = p.Sections[:0]
	byRoman := make(map[string]string)
	seen := make(map[string]bool)
	for _, title := range titles {
		title = strings.TrimSpace(title)
		id := SectionID(title)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p.Sections = append(p.Sections, Section{ID: id, Title: title})
		if r := romanPrefix(id); r != "" {
			if _, taken := byRoman[r]; !taken {
				byRoman[r] = id
			}
		}
	}

	p.ContentPerSection = make(map[string]SectionContent, len(content))
	for _, key := range slices.Sorted(maps.Keys(content)) {
		c := content[key]
		id := SectionID(key)
		if !seen[id] {
			id = byRoman[romanPrefix(id)]
		}
		if id == "" {
			dropped = append(dropped, key)
			continue
		}
		if existing, ok := p.ContentPerSection[id]; ok {
			existing.Points = append(existing.Points, c.Points...)
			existing.SupportingLaw = append(existing.SupportingLaw, c.SupportingLaw...)
			c = existing
		}
		p.ContentPerSection[id] = c
	}
	return dropped
}
