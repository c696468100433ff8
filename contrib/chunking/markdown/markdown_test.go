package markdown

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
)

const filing = "# Habilitação de Crédito\n\nIntrodução.\n\n## Dos Fatos\n\nA credora forneceu bens.\n\n### Detalhe\n\nNota.\n\n## Do Pedido\n\nRequer a inclusão.\n"

func TestDetectorReportsHeadingLines(t *testing.T) {
	st := New(WithMaxHeadingLevel(2)).Detect(filing)

	if len(st.Boundaries) != 3 {
		t.Fatalf("expected 3 boundaries, got %+v", st.Boundaries)
	}
	want := []chunking.Boundary{
		{Offset: 0, Title: "Habilitação de Crédito"},
		{Offset: strings.Index(filing, "## Dos Fatos"), Title: "Dos Fatos"},
		{Offset: strings.Index(filing, "## Do Pedido"), Title: "Do Pedido"},
	}
	for i, w := range want {
		if st.Boundaries[i] != w {
			t.Fatalf("boundary %d = %+v, want %+v", i, st.Boundaries[i], w)
		}
	}
}

func TestDetectorWithoutHeadings(t *testing.T) {
	if st := New().Detect("apenas texto corrido\n\nsem títulos"); st.HasStructure() {
		t.Fatalf("expected no structure, got %+v", st)
	}
}

func TestChunkerSplitsOnMarkdownHeadings(t *testing.T) {
	ch := chunking.New(chunking.WithBoundaryDetector(New(WithMaxHeadingLevel(2))))
	set := ch.Chunk(document.New(filing), "documento", chunking.Strategy{
		MaxTokensPerChunk: 1000,
		MaxTotalTokens:    10,
		PreserveStructure: true,
	})

	if set.Method != chunking.MethodStructural {
		t.Fatalf("expected structural method, got %s", set.Method)
	}
	var sections []string
	for _, c := range set.Chunks {
		sections = append(sections, c.Section)
	}
	if got := strings.Join(sections, "|"); got != "Habilitação de Crédito|Dos Fatos|Do Pedido" {
		t.Fatalf("unexpected sections %q", got)
	}
	if set.Reassemble() != filing {
		t.Fatalf("chunks do not cover the document")
	}
}
