package claude

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/lexdraft/oracle"
)

func TestGenerateJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
			"content":[{"type":"text","text":"EXCELENTÍSSIMO "},{"type":"text","text":"SENHOR"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "k", BaseURL: srv.URL})
	out, err := p.Generate(context.Background(), "hi", oracle.Options{})
	require.NoError(t, err)
	assert.Equal(t, "EXCELENTÍSSIMO SENHOR", out)
}

func TestGenerateClassifiesOverload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	_, err := New(&Config{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), "hi", oracle.Options{})
	var oe *oracle.Error
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, oracle.KindServiceUnavailable, oe.Kind)
	assert.Equal(t, 529, oe.StatusCode)
}
