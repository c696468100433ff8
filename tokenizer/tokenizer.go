package tokenizer

import "unicode/utf8"

// Counter estimates how many oracle tokens a text occupies.
type Counter interface {
	CountTokens(text string) int
}

// Tokenizer is a Counter that can also round-trip token ids.
type Tokenizer interface {
	Counter
	Encode(text string) []int
	// DecodeIds returns the text for a token window.
	DecodeIds(ids []int) string
}

// CharsPerToken is the rule-of-thumb ratio used by Estimate.
const CharsPerToken = 4

// Estimate returns ceil(chars/4), counting characters as runes.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateChars is Estimate for callers that already know the length.
func EstimateChars(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// Estimator is the default Counter.
type Estimator struct{}

var _ Counter = Estimator{}

// CountTokens implements Counter.
func (Estimator) CountTokens(text string) int { return Estimate(text) }

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

// CountTokens implements Counter.
func (f CounterFunc) CountTokens(text string) int { return f(text) }
