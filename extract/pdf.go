package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	errorskg "github.com/sweetpotato0/lexdraft/errors"
)

// Confidence of a PDF text layer that passes or fails the quality check.
const (
	PDFConfidence     = 0.9
	PDFPoorConfidence = 0.5
)

// PDF reads the text layer of a PDF. Scanned documents without one return
// errors.ErrNoExtractableText; OCR is left to the caller.
type PDF struct{}

func (PDF) Extract(ctx context.Context, raw Raw) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errorskg.Cancelled(err)
	}
	r, err := pdf.NewReader(bytes.NewReader(raw.Data), int64(len(raw.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, fmt.Errorf("read extracted text: %w", err)
	}

	text := Normalize(buf.String())
	if text == "" {
		return nil, errorskg.ErrNoExtractableText
	}
	confidence := PDFConfidence
	if !GoodQuality(text) {
		confidence = PDFPoorConfidence
	}
	return &Extraction{Text: text, Method: MethodPDFText, Confidence: confidence}, nil
}

var (
	legalTerms      = []string{"juiz", "vara", "processo", "requer", "manifestação", "crédito", "art", "lei"}
	reSuspicious    = regexp.MustCompile(`[{}\[\]<>|\\]{3,}|[^\p{L}\p{N}\s.,;:!?()"'-]{5,}`)
	reSentenceBreak = regexp.MustCompile(`[.!?]+`)
)

// GoodQuality reports whether text looks like a usable legal text layer:
// enough words of plausible length, normal spacing, legal vocabulary, at
// least three sentences and no runs of symbol garbage.
func GoodQuality(text string) bool {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) < 100 {
		return false
	}
	words := strings.Fields(text)
	if len(words) < 20 {
		return false
	}
	avg := float64(len(runes)) / float64(len(words))
	if avg > 15 || avg < 3 {
		return false
	}

	spaces := 0
	for _, r := range runes {
		if unicode.IsSpace(r) {
			spaces++
		}
	}
	ratio := float64(spaces) / float64(len(runes))
	if ratio < 0.08 || ratio > 0.4 {
		return false
	}

	lower := strings.ToLower(text)
	legal := false
	for _, term := range legalTerms {
		if strings.Contains(lower, term) {
			legal = true
			break
		}
	}
	if !legal || reSuspicious.MatchString(text) {
		return false
	}

	sentences := 0
	for _, s := range reSentenceBreak.Split(text, -1) {
		if len([]rune(strings.TrimSpace(s))) > 10 {
			sentences++
		}
	}
	return sentences >= 3
}
