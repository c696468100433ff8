package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/entity"
	"github.com/sweetpotato0/lexdraft/tokenizer"
)

// fastPathRatio is the share of MaxTotalTokens under which a document is
// kept whole.
const fastPathRatio = 0.3

const (
	sectionWhole    = "Documento Completo"
	sectionPreamble = "Preâmbulo"
)

var paragraphSep = regexp.MustCompile(`\n[ \t\r]*\n\s*`)

// Chunker splits documents into scored, prioritized chunks. It is safe for
// concurrent use.
type Chunker struct {
	counter  tokenizer.Counter
	detector BoundaryDetector
	splitter Splitter
	weights  ScoreWeights
	newID    func() string
}

// Option customizes the chunker.
type Option func(*Chunker)

// WithCounter replaces the ceil(chars/4) token estimate.
func WithCounter(c tokenizer.Counter) Option {
	return func(ch *Chunker) {
		if c != nil {
			ch.counter = c
		}
	}
}

// WithBoundaryDetector replaces the legal heading detector.
func WithBoundaryDetector(d BoundaryDetector) Option {
	return func(ch *Chunker) {
		if d != nil {
			ch.detector = d
		}
	}
}

// WithSplitter replaces how oversized lines and paragraphs are cut.
func WithSplitter(s Splitter) Option {
	return func(ch *Chunker) {
		if s != nil {
			ch.splitter = s
		}
	}
}

// WithWeights overrides relevance scoring weights.
func WithWeights(w ScoreWeights) Option {
	return func(ch *Chunker) {
		ch.weights = w
	}
}

// WithIDGenerator overrides chunk id generation.
func WithIDGenerator(fn func() string) Option {
	return func(ch *Chunker) {
		if fn != nil {
			ch.newID = fn
		}
	}
}

// New constructs a chunker.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		counter:  tokenizer.Estimator{},
		detector: LegalStructure(),
		splitter: WindowSplitter(),
		weights:  DefaultWeights(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// CountTokens exposes the chunker's token counter.
func (c *Chunker) CountTokens(text string) int {
	return c.counter.CountTokens(text)
}

type span struct {
	start, end int
	section    string
}

type unit struct {
	start, end int
	boundary   bool
	title      string
}

// Chunk splits doc according to s. Documents that fit within 30% of
// s.MaxTotalTokens come back as one full-document chunk. An empty document
// yields an empty set.
func (c *Chunker) Chunk(doc document.Document, docType string, s Strategy) *ChunkSet {
	text := doc.Text
	set := &ChunkSet{DocumentType: docType, Strategy: s}
	if strings.TrimSpace(text) == "" {
		set.Method = MethodEmpty
		return set
	}

	total := c.counter.CountTokens(text)
	structure := c.detector.Detect(text)
	set.ContextSummary = summarize(docType, entity.Extract(text), structure, total)

	if float64(total) <= fastPathRatio*float64(s.MaxTotalTokens) || s.MaxTokensPerChunk <= 0 {
		ch := c.newChunk(text, span{start: 0, end: len(text), section: sectionWhole}, 0, 0)
		ch.Kind = KindBody
		ch.RelevanceScore = 1
		ch.Priority = PriorityHigh
		set.Method = MethodNoChunking
		set.Chunks = []Chunk{ch}
		set.Prioritized = []Chunk{ch}
		set.TotalTokens = ch.TokenEstimate
		return set
	}

	var spans []span
	switch {
	case s.PreserveStructure && structure.HasStructure():
		set.Method = MethodStructural
		spans = c.accumulate(text, c.lineUnits(text, structure.Boundaries, s.MaxTokensPerChunk), s.MaxTokensPerChunk, sectionPreamble)
	case s.SemanticBoundaries:
		set.Method = MethodSemantic
		spans = c.accumulate(text, c.paragraphUnits(text, s.MaxTokensPerChunk), s.MaxTokensPerChunk, "")
		nameSequential(spans)
	default:
		set.Method = MethodFixed
		spans = c.accumulate(text, c.splitUnit(text, unit{start: 0, end: len(text)}, s.MaxTokensPerChunk), s.MaxTokensPerChunk, "")
		nameSequential(spans)
	}

	set.Chunks = make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		overlap := 0
		if i > 0 {
			overlap = overlapPrefix(text[spans[i-1].start:spans[i-1].end], s.OverlapTokens)
		}
		ch := c.newChunk(text, sp, i, overlap)
		ch.Kind = classify(ch.Section, ch.Body())
		ch.RelevanceScore = c.weights.Score(ch, len(text), s.Keywords)
		ch.Priority = PriorityFor(ch.RelevanceScore)
		set.Chunks = append(set.Chunks, ch)
		set.TotalTokens += ch.TokenEstimate
	}
	set.Prioritized = prioritize(set.Chunks)
	return set
}

func (c *Chunker) newChunk(text string, sp span, index, overlap int) Chunk {
	content := text[sp.start-overlap : sp.end]
	sum := sha256.Sum256([]byte(content))
	body := text[sp.start:sp.end]
	return Chunk{
		ID:            c.newID(),
		Index:         index,
		Content:       content,
		Overlap:       overlap,
		Start:         sp.start,
		End:           sp.end,
		TokenEstimate: c.counter.CountTokens(content),
		Section:       sp.section,
		Entities:      entity.Extract(body),
		Hash:          hex.EncodeToString(sum[:]),
	}
}

// accumulate greedily packs consecutive units into spans. A boundary unit
// always opens a new span once the current one has visible content; any
// unit that would push the span past maxTokens closes it first. Units cover
// the text contiguously, so the spans do too.
func (c *Chunker) accumulate(text string, units []unit, maxTokens int, firstSection string) []span {
	if len(units) == 0 {
		return nil
	}
	var spans []span
	cur := span{start: units[0].start, section: firstSection}
	tokens := 0
	for _, u := range units {
		n := c.counter.CountTokens(text[u.start:u.end])
		hasContent := strings.TrimSpace(text[cur.start:u.start]) != ""
		switch {
		case u.boundary && hasContent:
			cur.end = u.start
			spans = append(spans, cur)
			cur = span{start: u.start, section: u.title}
			tokens = 0
		case u.boundary:
			cur.section = u.title
		case hasContent && tokens+n > maxTokens:
			cur.end = u.start
			spans = append(spans, cur)
			cur = span{start: u.start, section: cur.section}
			tokens = 0
		}
		tokens += n
	}
	cur.end = units[len(units)-1].end
	if strings.TrimSpace(text[cur.start:cur.end]) == "" && len(spans) > 0 {
		spans[len(spans)-1].end = cur.end
	} else {
		spans = append(spans, cur)
	}
	return spans
}

// lineUnits returns one unit per line, flagging lines that start a section.
func (c *Chunker) lineUnits(text string, boundaries []Boundary, maxTokens int) []unit {
	titles := make(map[int]string, len(boundaries))
	for _, b := range boundaries {
		titles[b.Offset] = b.Title
	}
	var units []unit
	for start := 0; start < len(text); {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end = start + end + 1
		}
		title, ok := titles[start]
		units = append(units, c.splitUnit(text, unit{start: start, end: end, boundary: ok, title: title}, maxTokens)...)
		start = end
	}
	return units
}

// paragraphUnits returns one unit per paragraph; each unit keeps its
// trailing blank-line separator.
func (c *Chunker) paragraphUnits(text string, maxTokens int) []unit {
	var units []unit
	start := 0
	for _, loc := range paragraphSep.FindAllStringIndex(text, -1) {
		units = append(units, c.splitUnit(text, unit{start: start, end: loc[1]}, maxTokens)...)
		start = loc[1]
	}
	if start < len(text) {
		units = append(units, c.splitUnit(text, unit{start: start, end: len(text)}, maxTokens)...)
	}
	return units
}

// splitUnit cuts u when it alone exceeds maxTokens. Only the first piece
// keeps the boundary flag.
func (c *Chunker) splitUnit(text string, u unit, maxTokens int) []unit {
	if c.counter.CountTokens(text[u.start:u.end]) <= maxTokens {
		return []unit{u}
	}
	pieces := c.splitter.Split(text[u.start:u.end], maxTokens)
	units := make([]unit, 0, len(pieces))
	offset := u.start
	for i, p := range pieces {
		if p == "" {
			continue
		}
		piece := unit{start: offset, end: offset + len(p)}
		if i == 0 {
			piece.boundary, piece.title = u.boundary, u.title
		}
		units = append(units, piece)
		offset += len(p)
	}
	if offset != u.end {
		// Splitter broke the concatenation contract; keep the unit whole.
		return []unit{u}
	}
	return units
}

func nameSequential(spans []span) {
	for i := range spans {
		spans[i].section = fmt.Sprintf("Seção %d", i+1)
	}
}

// overlapPrefix returns how many trailing bytes of prev to repeat at the
// start of the next chunk, starting on a word boundary when possible.
func overlapPrefix(prev string, overlapTokens int) int {
	limit := overlapTokens * tokenizer.CharsPerToken
	if limit <= 0 || prev == "" {
		return 0
	}
	n := utf8.RuneCountInString(prev)
	if n <= limit {
		return 0
	}
	tail := prev[runeOffset(prev, n-limit):]
	if i := strings.IndexAny(tail, " \t\n"); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return len(tail)
}

// prioritize orders by priority, then score, then document position.
func prioritize(chunks []Chunk) []Chunk {
	out := slices.Clone(chunks)
	slices.SortStableFunc(out, func(a, b Chunk) int {
		if d := b.Priority.Rank() - a.Priority.Rank(); d != 0 {
			return d
		}
		switch {
		case a.RelevanceScore > b.RelevanceScore:
			return -1
		case a.RelevanceScore < b.RelevanceScore:
			return 1
		}
		return a.Index - b.Index
	})
	return out
}

func summarize(docType string, e entity.Set, st Structure, tokens int) string {
	parts := []string{"Documento: " + docType}
	if len(e.Parties) > 0 {
		parts = append(parts, "Partes: "+strings.Join(firstN(e.Parties, 3), ", "))
	}
	if len(e.MonetaryValues) > 0 {
		parts = append(parts, "Valores: "+strings.Join(firstN(e.MonetaryValues, 3), ", "))
	}
	if len(st.Sections) > 0 {
		parts = append(parts, "Seções: "+strings.Join(firstN(st.Sections, 3), ", "))
	}
	parts = append(parts, fmt.Sprintf("Extensão: ~%d tokens", tokens))
	return strings.Join(parts, " | ")
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
