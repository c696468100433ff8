// Package markdown detects section boundaries in markdown sources using the
// goldmark AST, for filings exported from editors that emit markdown headings.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/lexdraft/chunking"
)

// Detector reports every heading up to maxHeadingLevel as a chunk boundary.
type Detector struct {
	maxHeadingLevel int
	parser          goldmark.Markdown
}

// Option customises the markdown detector.
type Option func(*Detector)

// WithMaxHeadingLevel caps which heading level starts a new section (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(d *Detector) {
		if level > 0 {
			d.maxHeadingLevel = level
		}
	}
}

// New creates a markdown boundary detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		maxHeadingLevel: 3,
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect implements chunking.BoundaryDetector. Offsets point at the start of
// the heading line, including its '#' markers.
func (d *Detector) Detect(content string) chunking.Structure {
	source := []byte(content)
	root := d.parser.Parser().Parse(text.NewReader(source))

	var st chunking.Structure
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if heading.Level > d.maxHeadingLevel {
			return ast.WalkSkipChildren, nil
		}
		lines := heading.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		start := bytes.LastIndexByte(source[:lines.At(0).Start], '\n') + 1
		title := strings.TrimSpace(string(heading.Text(source)))
		st.Boundaries = append(st.Boundaries, chunking.Boundary{Offset: start, Title: title})
		st.Sections = append(st.Sections, title)
		return ast.WalkSkipChildren, nil
	})
	return st
}

var _ chunking.BoundaryDetector = (*Detector)(nil)
