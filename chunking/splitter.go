package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sweetpotato0/lexdraft/tokenizer"
)

// Splitter cuts an oversized unit into pieces of at most maxTokens. The
// pieces must concatenate back to text.
type Splitter interface {
	Split(text string, maxTokens int) []string
}

// SplitterFunc adapts a function to Splitter.
type SplitterFunc func(text string, maxTokens int) []string

// Split implements Splitter.
func (f SplitterFunc) Split(text string, maxTokens int) []string { return f(text, maxTokens) }

// WindowSplitter cuts by character windows sized from the 4-chars-per-token
// estimate, preferring to cut after whitespace.
func WindowSplitter() Splitter {
	return SplitterFunc(splitWindows)
}

func splitWindows(text string, maxTokens int) []string {
	limit := maxTokens * tokenizer.CharsPerToken
	if limit <= 0 || text == "" {
		return []string{text}
	}
	var out []string
	for len(text) > 0 {
		cut := runeOffset(text, limit)
		if cut >= len(text) {
			out = append(out, text)
			break
		}
		if ws := strings.LastIndexFunc(text[:cut], unicode.IsSpace); ws > cut/2 {
			_, size := utf8.DecodeRuneInString(text[ws:])
			cut = ws + size
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

// runeOffset returns the byte offset of the n-th rune, or len(s).
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
