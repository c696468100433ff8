// Package extract turns uploaded files into normalized plain text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// Extraction methods.
const (
	MethodPlain   = "plain"
	MethodHTML    = "html"
	MethodPDFText = "pdf-text"
)

// Raw is an uploaded file.
type Raw struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Extraction is the text of a Raw file.
type Extraction struct {
	Text   string `json:"text"`
	Method string `json:"method"`
	// Confidence is in (0,1]; zero means the extractor does not estimate it.
	Confidence float64 `json:"confidence,omitempty"`
}

// Extractor pulls text out of one kind of file.
type Extractor interface {
	Extract(ctx context.Context, raw Raw) (*Extraction, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, raw Raw) (*Extraction, error)

func (f ExtractorFunc) Extract(ctx context.Context, raw Raw) (*Extraction, error) {
	return f(ctx, raw)
}

// Router dispatches on the MIME type, then on the file extension.
type Router struct {
	byMIME map[string]Extractor
	byExt  map[string]Extractor
	logger *slog.Logger
}

// NewRouter returns a router handling plain text, HTML and PDF.
func NewRouter() *Router {
	r := &Router{
		byMIME: make(map[string]Extractor),
		byExt:  make(map[string]Extractor),
		logger: logging.WithComponent("extract"),
	}
	plain, html, pdf := Plain{}, HTML{}, PDF{}
	r.Register(plain, []string{"text/plain"}, ".txt", ".text")
	r.Register(html, []string{"text/html", "application/xhtml+xml"}, ".html", ".htm", ".xhtml")
	r.Register(pdf, []string{"application/pdf"}, ".pdf")
	return r
}

// Register routes the MIME types and extensions to e, replacing earlier
// registrations.
func (r *Router) Register(e Extractor, mimeTypes []string, exts ...string) {
	for _, m := range mimeTypes {
		r.byMIME[strings.ToLower(m)] = e
	}
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Extract implements Extractor.
func (r *Router) Extract(ctx context.Context, raw Raw) (*Extraction, error) {
	e, err := r.route(raw)
	if err != nil {
		return nil, err
	}
	out, err := e.Extract(ctx, raw)
	if err != nil {
		r.logger.WarnContext(ctx, "extraction failed", "name", raw.Name, "mime", raw.MIMEType, "error", err)
		return nil, err
	}
	r.logger.DebugContext(ctx, "text extracted",
		"name", raw.Name,
		"method", out.Method,
		"chars", utf8.RuneCountInString(out.Text),
	)
	return out, nil
}

func (r *Router) route(raw Raw) (Extractor, error) {
	if raw.MIMEType != "" {
		mt, _, err := mime.ParseMediaType(raw.MIMEType)
		if err == nil {
			if e, ok := r.byMIME[strings.ToLower(mt)]; ok {
				return e, nil
			}
		}
	}
	if ext := strings.ToLower(filepath.Ext(raw.Name)); ext != "" {
		if e, ok := r.byExt[ext]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported file %q (%s)", errorskg.ErrInvalidInput, raw.Name, raw.MIMEType)
}

// Plain reads text files. Bytes that are not valid UTF-8 are decoded as
// Windows-1252, the usual encoding of legacy court exports.
type Plain struct{}

func (Plain) Extract(_ context.Context, raw Raw) (*Extraction, error) {
	text, err := decodeText(raw.Data)
	if err != nil {
		return nil, err
	}
	return finish(text, MethodPlain, 0)
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}

func finish(text, method string, confidence float64) (*Extraction, error) {
	text = Normalize(text)
	if text == "" {
		return nil, errorskg.ErrNoExtractableText
	}
	return &Extraction{Text: text, Method: method, Confidence: confidence}, nil
}

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	ligatures  = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl", "ﬀ", "ff", "ﬃ", "ffi", "ﬄ", "ffl",
		"\u00ad", "", "\u00a0", " ",
	)
)

// Normalize removes control characters except newlines, expands ligatures,
// collapses runs of blanks and keeps at most one empty line between
// paragraphs.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = ligatures.Replace(text)
	text = reSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
