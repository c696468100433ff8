// Package entity extracts parties, monetary values, dates and legal references
// from Brazilian legal text with regular expressions.
package entity

import (
	"regexp"
	"strconv"
	"strings"
)

// Caps on how many entities of each category are kept.
const (
	MaxParties         = 5
	MaxMonetaryValues  = 8
	MaxDates           = 8
	MaxLegalReferences = 10
)

var (
	partyRe = regexp.MustCompile(`(?i)(?:requerente|requerido|autor|réu|apelante|apelado)s?:?\s*([^\n.,]{3,50})`)
	valueRe = regexp.MustCompile(`R\$\s*([\d.,]+)`)
	dateRe  = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	lawRe   = regexp.MustCompile(`(?i)\b(?:Lei|Decreto|Código|CF|CC|CPC|CLT)\s*n?[º°.]?\s*[\d./\-]*\d`)
)

// Set groups the entities found in a piece of text. Each list keeps
// first-seen order without duplicates.
type Set struct {
	Parties         []string `json:"parties"`
	MonetaryValues  []string `json:"monetaryValues"`
	Dates           []string `json:"dates"`
	LegalReferences []string `json:"legalReferences"`
}

// Extract scans text for every entity category.
func Extract(text string) Set {
	var s Set
	for _, m := range partyRe.FindAllStringSubmatch(text, -1) {
		s.Parties = appendUnique(s.Parties, strings.TrimSpace(m[1]), MaxParties)
	}
	for _, m := range valueRe.FindAllStringSubmatch(text, -1) {
		digits := strings.TrimRight(m[1], ".,")
		if digits == "" {
			continue
		}
		s.MonetaryValues = appendUnique(s.MonetaryValues, "R$ "+digits, MaxMonetaryValues)
	}
	for _, m := range dateRe.FindAllString(text, -1) {
		s.Dates = appendUnique(s.Dates, m, MaxDates)
	}
	for _, m := range lawRe.FindAllString(text, -1) {
		s.LegalReferences = appendUnique(s.LegalReferences, strings.TrimSpace(m), MaxLegalReferences)
	}
	return s
}

// Empty reports whether no entity was found.
func (s Set) Empty() bool {
	return len(s.Parties)+len(s.MonetaryValues)+len(s.Dates)+len(s.LegalReferences) == 0
}

// PrimaryValue returns the largest parsable monetary value, or 0.
func (s Set) PrimaryValue() float64 {
	var best float64
	for _, v := range s.MonetaryValues {
		if f, ok := ParseMonetary(v); ok && f > best {
			best = f
		}
	}
	return best
}

func appendUnique(list []string, v string, limit int) []string {
	if v == "" || len(list) >= limit {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// ParseMonetary parses amounts written as "R$ 69.600,00", "69600.50" or
// "1.234.567". Dots are read as thousand separators unless they introduce a
// two-digit decimal part and no comma is present.
func ParseMonetary(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	s = strings.TrimRight(s, ".,")
	if s == "" {
		return 0, false
	}
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") == 1 && len(s)-strings.Index(s, ".")-1 <= 2:
	default:
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
