// Package token cuts text on word-level token boundaries without depending
// on provider-specific codecs.
package token

import (
	"regexp"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/tokenizer"
)

var tokenRegex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+|[^\s]`)

// Splitter cuts text into pieces holding at most maxTokens word tokens.
// Whitespace stays attached to the token before it, so pieces concatenate
// back to the input.
type Splitter struct{}

// New creates a token splitter.
func New() Splitter { return Splitter{} }

// Split implements chunking.Splitter.
func (Splitter) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 || text == "" {
		return []string{text}
	}
	var pieces []string
	cut := 0
	for i, loc := range tokenRegex.FindAllStringIndex(text, -1) {
		if i > 0 && i%maxTokens == 0 {
			pieces = append(pieces, text[cut:loc[0]])
			cut = loc[0]
		}
	}
	return append(pieces, text[cut:])
}

// CountTokens implements tokenizer.Counter with the same token definition
// used for splitting.
func (Splitter) CountTokens(text string) int {
	return len(tokenRegex.FindAllStringIndex(text, -1))
}

var (
	_ chunking.Splitter = Splitter{}
	_ tokenizer.Counter = Splitter{}
)
