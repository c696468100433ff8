package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/lexdraft/chunking"
)

// isolate clears the variables the configuration reads so the host
// environment cannot leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LEXDRAFT_PROVIDER", "LEXDRAFT_MODEL", "LEXDRAFT_CACHE_BACKEND",
		"LEXDRAFT_EXEMPLAR_BACKEND", "LEXDRAFT_AUDIT_DSN", "LEXDRAFT_LOG_LEVEL",
		"LEXDRAFT_LOG_FORMAT", "LEXDRAFT_PROMPT_DIR", "LEXDRAFT_TRACE_SAMPLE_RATIO",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	isolate(t)
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "absent.env")))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

const filing = `EXCELENTÍSSIMO SENHOR DOUTOR JUIZ DE DIREITO

Requerente: Fornecedora Alfa Ltda

O credor requer a habilitação do crédito de R$ 10.000,00 nos termos da Lei 11.101/2005.`

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-1.0.0"
	defer func() { version = original }()

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lexdraft version test-1.0.0")
}

func TestChunkCmdJSON(t *testing.T) {
	path := writeDoc(t, "peticao.txt", filing)

	out, _, err := execute(t, "chunk", path, "--type", "Habilitação de Crédito", "--json")
	require.NoError(t, err)

	var set chunking.ChunkSet
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	assert.Equal(t, chunking.MethodNoChunking, set.Method)
	assert.Equal(t, "Habilitação de Crédito", set.Strategy.Name)
	require.Len(t, set.Chunks, 1)
	assert.Contains(t, set.Chunks[0].Content, "habilitação do crédito")
	assert.Contains(t, set.ContextSummary, "R$ 10.000,00")
}

func TestChunkCmdTable(t *testing.T) {
	path := writeDoc(t, "peticao.txt", filing)

	out, _, err := execute(t, "chunk", path, "--splitter", "token", "--tokenizer", "words")
	require.NoError(t, err)
	assert.Contains(t, out, "method no-chunking")
	assert.Contains(t, out, "Documento Completo")
}

func TestChunkCmdRejectsUnknownSplitter(t *testing.T) {
	path := writeDoc(t, "peticao.txt", filing)

	_, _, err := execute(t, "chunk", path, "--splitter", "sentences")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown splitter")
}

func TestChunkCmdMissingFile(t *testing.T) {
	_, _, err := execute(t, "chunk", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSimilarFindWithoutExemplars(t *testing.T) {
	out, _, err := execute(t, "similar", "find", "--agent", "agent-1", "--value", "10000")
	require.NoError(t, err)
	assert.Contains(t, out, "No exemplars found.")

	out, _, err = execute(t, "similar", "find", "--agent", "agent-1", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestSimilarFindRequiresAgent(t *testing.T) {
	_, _, err := execute(t, "similar", "find")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--agent")
}

func TestSimilarAddNeedsPersistentStore(t *testing.T) {
	path := writeDoc(t, "manifestacao.txt", filing)

	_, _, err := execute(t, "similar", "add", path, "--agent", "agent-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exemplars.backend is memory")
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	path := writeDoc(t, "peticao.txt", filing)

	_, _, err := execute(t, "generate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestRunsShowRequiresHistory(t *testing.T) {
	_, _, err := execute(t, "runs", "show", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run history is not configured")
}

func TestInvalidConfigFile(t *testing.T) {
	path := writeDoc(t, "lexdraft.yaml", "pipeline:\n  max_iterations: 0\n")

	_, _, err := execute(t, "--config", path, "chunk", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.max_iterations")
}
