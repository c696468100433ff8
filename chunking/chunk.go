package chunking

import (
	"slices"
	"strings"

	"github.com/sweetpotato0/lexdraft/entity"
)

// Chunk is a scored slice of a source document. Content is an exact byte
// range of the source; its first Overlap bytes repeat the tail of the
// previous chunk.
type Chunk struct {
	ID             string     `json:"id"`
	Index          int        `json:"index"`
	Content        string     `json:"content"`
	Overlap        int        `json:"overlap"`
	Start          int        `json:"start"`
	End            int        `json:"end"`
	Kind           Kind       `json:"kind"`
	TokenEstimate  int        `json:"tokenEstimate"`
	Section        string     `json:"section"`
	Entities       entity.Set `json:"entities"`
	RelevanceScore float64    `json:"relevanceScore"`
	Priority       Priority   `json:"priority"`
	Hash           string     `json:"hash"`
}

// Body returns Content without the overlap prefix.
func (c Chunk) Body() string {
	if c.Overlap <= 0 || c.Overlap > len(c.Content) {
		return c.Content
	}
	return c.Content[c.Overlap:]
}

// ChunkSet is the output of one Chunk call.
type ChunkSet struct {
	DocumentType   string   `json:"documentType"`
	Strategy       Strategy `json:"strategy"`
	Method         string   `json:"method"`
	Chunks         []Chunk  `json:"chunks"`
	Prioritized    []Chunk  `json:"prioritizedChunks"`
	TotalTokens    int      `json:"totalTokens"`
	ContextSummary string   `json:"contextSummary"`
}

// Chunked reports whether the document was split into more than the
// full-document fast path.
func (s *ChunkSet) Chunked() bool {
	return s != nil && (s.Method == MethodStructural || s.Method == MethodSemantic || s.Method == MethodFixed)
}

// Relevant returns prioritized chunks scoring at least the strategy's
// priority threshold.
func (s *ChunkSet) Relevant() []Chunk {
	if s == nil {
		return nil
	}
	out := make([]Chunk, 0, len(s.Prioritized))
	for _, c := range s.Prioritized {
		if c.RelevanceScore >= s.Strategy.PriorityThreshold {
			out = append(out, c)
		}
	}
	return out
}

// ByPriority returns the prioritized chunks falling in any of the given
// buckets, keeping their order.
func (s *ChunkSet) ByPriority(ps ...Priority) []Chunk {
	if s == nil {
		return nil
	}
	var out []Chunk
	for _, c := range s.Prioritized {
		if slices.Contains(ps, c.Priority) {
			out = append(out, c)
		}
	}
	return out
}

// Reassemble concatenates chunk bodies in document order. For any non-empty
// document it returns the original text.
func (s *ChunkSet) Reassemble() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range s.Chunks {
		b.WriteString(c.Body())
	}
	return b.String()
}

// Context joins relevant chunk bodies, in document order, until maxTokens
// would be exceeded. count estimates tokens.
func (s *ChunkSet) Context(maxTokens int, count func(string) int) string {
	relevant := s.Relevant()
	if len(relevant) == 0 {
		return ""
	}
	keep := make(map[int]bool, len(relevant))
	used := 0
	for _, c := range relevant {
		n := count(c.Body())
		if maxTokens > 0 && used+n > maxTokens {
			continue
		}
		keep[c.Index] = true
		used += n
	}
	var b strings.Builder
	for _, c := range s.Chunks {
		if !keep[c.Index] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[" + c.Section + "]\n")
		b.WriteString(strings.TrimSpace(c.Body()))
	}
	return b.String()
}
