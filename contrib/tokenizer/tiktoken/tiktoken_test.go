package tiktoken

import (
	"os"
	"testing"
)

// Loading an encoding downloads the BPE ranks unless TIKTOKEN_CACHE_DIR holds them.
func TestCountTokensMatchesEncodeLength(t *testing.T) {
	if os.Getenv("TIKTOKEN_CACHE_DIR") == "" {
		t.Skip("TIKTOKEN_CACHE_DIR not set")
	}
	tok, err := NewTiktokenTokenizer("cl100k_base")
	if err != nil {
		t.Fatalf("load encoding: %v", err)
	}
	text := "Habilitação de crédito"
	if got, want := tok.CountTokens(text), len(tok.Encode(text)); got != want {
		t.Fatalf("CountTokens = %d, want %d", got, want)
	}
	if tok.DecodeIds(tok.Encode(text)) != text {
		t.Fatalf("round trip failed")
	}
}
