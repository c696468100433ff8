package chunking

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Boundary marks a line that starts a new section.
type Boundary struct {
	// Offset is the byte offset of the start of the line.
	Offset int
	Title  string
}

// Structure describes the sectioning found in a document.
type Structure struct {
	Boundaries []Boundary
	// Sections lists canonical legal section names present in the text.
	Sections []string
}

// HasStructure reports whether any structural marker was found.
func (s Structure) HasStructure() bool {
	return len(s.Boundaries) > 0 || len(s.Sections) > 0
}

// BoundaryDetector finds section boundaries in a text.
type BoundaryDetector interface {
	Detect(text string) Structure
}

// DetectorFunc adapts a function to BoundaryDetector.
type DetectorFunc func(string) Structure

// Detect implements BoundaryDetector.
func (f DetectorFunc) Detect(text string) Structure { return f(text) }

var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^[ \t]*(?:CAPÍTULO|SEÇÃO|TÍTULO)\s+[IVX\d]+`),
	regexp.MustCompile(`(?im)^[ \t]*Art\.?\s*\d+`),
	regexp.MustCompile(`(?im)^[ \t]*\d+\.\s+[A-Z]`),
	regexp.MustCompile(`(?im)^[ \t]*[IVX]+\s*-\s*`),
}

// CanonicalSections are the section headings of Brazilian legal filings.
var CanonicalSections = []string{
	"DOS FATOS",
	"DO DIREITO",
	"DA FUNDAMENTAÇÃO",
	"DO PEDIDO",
	"RELATÓRIO",
	"VOTO",
	"DISPOSITIVO",
}

// maxHeadingRunes bounds how long a line naming a canonical section may be
// before it is treated as prose.
const maxHeadingRunes = 60

// LegalStructure detects numbered headings and canonical section names. A
// heading pattern only counts when it matches more than twice.
func LegalStructure() BoundaryDetector {
	return DetectorFunc(detectLegal)
}

func detectLegal(text string) Structure {
	var st Structure
	seen := map[int]bool{}
	add := func(offset int) {
		if seen[offset] {
			return
		}
		seen[offset] = true
		st.Boundaries = append(st.Boundaries, Boundary{Offset: offset, Title: lineAt(text, offset)})
	}

	for _, re := range headerPatterns {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) <= 2 {
			continue
		}
		for _, loc := range locs {
			add(lineStart(text, loc[0]))
		}
	}

	for _, name := range CanonicalSections {
		if !strings.Contains(text, name) {
			continue
		}
		st.Sections = append(st.Sections, name)
		for from := 0; ; {
			i := strings.Index(text[from:], name)
			if i < 0 {
				break
			}
			start := lineStart(text, from+i)
			if utf8.RuneCountInString(lineAt(text, start)) <= maxHeadingRunes {
				add(start)
			}
			from += i + len(name)
		}
	}

	sortBoundaries(st.Boundaries)
	return st
}

// FirstOf returns a detector that uses the first detector reporting structure.
func FirstOf(detectors ...BoundaryDetector) BoundaryDetector {
	return DetectorFunc(func(text string) Structure {
		var fallback Structure
		for _, d := range detectors {
			st := d.Detect(text)
			if len(st.Boundaries) > 0 {
				return st
			}
			if len(fallback.Sections) == 0 {
				fallback.Sections = st.Sections
			}
		}
		return fallback
	})
}

func sortBoundaries(b []Boundary) {
	slices.SortFunc(b, func(x, y Boundary) int { return x.Offset - y.Offset })
}

func lineStart(text string, at int) int {
	return strings.LastIndexByte(text[:at], '\n') + 1
}

func lineAt(text string, start int) string {
	end := strings.IndexByte(text[start:], '\n')
	if end < 0 {
		return strings.TrimSpace(text[start:])
	}
	return strings.TrimSpace(text[start : start+end])
}
