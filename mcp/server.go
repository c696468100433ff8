// Package mcp exposes the generation pipeline as Model Context Protocol tools
// so MCP-capable assistants can chunk documents, look up exemplars and
// request manifestations.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/document"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
	"github.com/sweetpotato0/lexdraft/pipeline"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
	"github.com/sweetpotato0/lexdraft/similarity"
)

const (
	ToolChunkDocument  = "chunk_document"
	ToolFindExemplars  = "find_exemplars"
	ToolGenerate       = "generate_manifestation"
	defaultPreviewSize = 160
)

// ErrRetrieverMissing is returned by find_exemplars when no exemplar store
// is configured.
var ErrRetrieverMissing = errors.New("exemplar retrieval is not configured")

// Server serves the pipeline tools over an MCP transport.
type Server struct {
	server       *sdkmcp.Server
	orchestrator *pipeline.Orchestrator
	chunker      *chunking.Chunker
	retriever    *similarity.Retriever
	strategy     func(docType string) chunking.Strategy
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRetriever enables find_exemplars.
func WithRetriever(r *similarity.Retriever) Option {
	return func(s *Server) { s.retriever = r }
}

// WithChunker replaces the chunker used by chunk_document.
func WithChunker(c *chunking.Chunker) Option {
	return func(s *Server) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithStrategies resolves the chunking strategy of a document type so
// configured overrides apply to both chunking and generation.
func WithStrategies(fn func(docType string) chunking.Strategy) Option {
	return func(s *Server) {
		if fn != nil {
			s.strategy = fn
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer registers the tools backed by orchestrator.
func NewServer(orchestrator *pipeline.Orchestrator, version string, opts ...Option) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator is required", errorskg.ErrInvalidInput)
	}
	s := &Server{
		orchestrator: orchestrator,
		chunker:      chunking.New(),
		strategy:     chunking.StrategyFor,
		logger:       logging.WithComponent("mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "lexdraft",
		Version: version,
		Title:   "Legal manifestation drafting",
	}, nil)
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *sdkmcp.Server { return s.server }

// Run serves a single client over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "mcp server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        ToolChunkDocument,
		Description: "Split a legal document into scored, prioritized chunks",
	}, s.handleChunk)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        ToolFindExemplars,
		Description: "Rank an agent's accepted manifestations against the facts of a case",
	}, s.handleFindExemplars)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        ToolGenerate,
		Description: "Run the analysis, planning, drafting and review loop and return the manifestation",
	}, s.handleGenerate)
}

// ChunkInput are the chunk_document arguments.
type ChunkInput struct {
	Text         string `json:"text" jsonschema:"Full text of the document"`
	DocumentType string `json:"document_type,omitempty" jsonschema:"Document type, e.g. habilitação de crédito"`
}

// ChunkSummary describes one chunk without repeating its full text.
type ChunkSummary struct {
	ID             string  `json:"id"`
	Index          int     `json:"index"`
	Section        string  `json:"section"`
	Kind           string  `json:"kind"`
	Priority       string  `json:"priority"`
	RelevanceScore float64 `json:"relevance_score"`
	TokenEstimate  int     `json:"token_estimate"`
	Preview        string  `json:"preview"`
}

// ChunkOutput is the chunk_document result.
type ChunkOutput struct {
	Method         string         `json:"method"`
	Strategy       string         `json:"strategy"`
	TotalTokens    int            `json:"total_tokens"`
	ContextSummary string         `json:"context_summary"`
	Chunks         []ChunkSummary `json:"chunks"`
}

func (s *Server) handleChunk(ctx context.Context, _ *sdkmcp.CallToolRequest, in ChunkInput) (*sdkmcp.CallToolResult, ChunkOutput, error) {
	doc := document.New(in.Text)
	if doc.IsEmpty() {
		return nil, ChunkOutput{}, fmt.Errorf("%w: text is required", errorskg.ErrInvalidInput)
	}
	docType := docTypeOr(in.DocumentType)
	strategy := s.strategy(docType)

	set := s.chunker.Chunk(doc, docType, strategy)
	out := ChunkOutput{
		Method:         set.Method,
		Strategy:       set.Strategy.Name,
		TotalTokens:    set.TotalTokens,
		ContextSummary: set.ContextSummary,
		Chunks:         make([]ChunkSummary, 0, len(set.Prioritized)),
	}
	for _, c := range set.Prioritized {
		out.Chunks = append(out.Chunks, ChunkSummary{
			ID:             c.ID,
			Index:          c.Index,
			Section:        c.Section,
			Kind:           string(c.Kind),
			Priority:       string(c.Priority),
			RelevanceScore: c.RelevanceScore,
			TokenEstimate:  c.TokenEstimate,
			Preview:        preview(c.Body(), defaultPreviewSize),
		})
	}
	s.logger.DebugContext(ctx, "chunk_document", "method", out.Method, "chunks", len(out.Chunks))
	return nil, out, nil
}

// ExemplarInput are the find_exemplars arguments.
type ExemplarInput struct {
	AgentID        string  `json:"agent_id" jsonschema:"Agent owning the exemplars"`
	DocumentType   string  `json:"document_type,omitempty" jsonschema:"Document type of the current case"`
	PrimaryValue   float64 `json:"primary_value,omitempty" jsonschema:"Main monetary value of the case"`
	Classification string  `json:"classification,omitempty" jsonschema:"Credit type or nature of the action"`
	Divergent      bool    `json:"divergent,omitempty" jsonschema:"Whether the presented total differs from the computed one"`
	PartyCount     int     `json:"party_count,omitempty" jsonschema:"Number of parties"`
	IssueCount     int     `json:"issue_count,omitempty" jsonschema:"Number of open legal issues"`
	TopK           int     `json:"top_k,omitempty" jsonschema:"Maximum number of exemplars, defaults to 3"`
}

// ExemplarOutput is the find_exemplars result.
type ExemplarOutput struct {
	Exemplars []similarity.Candidate `json:"exemplars"`
}

func (s *Server) handleFindExemplars(ctx context.Context, _ *sdkmcp.CallToolRequest, in ExemplarInput) (*sdkmcp.CallToolResult, ExemplarOutput, error) {
	if s.retriever == nil {
		return nil, ExemplarOutput{}, ErrRetrieverMissing
	}
	if strings.TrimSpace(in.AgentID) == "" {
		return nil, ExemplarOutput{}, fmt.Errorf("%w: agent_id is required", errorskg.ErrInvalidInput)
	}
	topK := in.TopK
	if topK <= 0 {
		topK = s.orchestrator.Config().ExemplarCount
	}

	found, err := s.retriever.Find(ctx, in.AgentID, similarity.Case{
		DocumentType:   docTypeOr(in.DocumentType),
		PrimaryValue:   in.PrimaryValue,
		Classification: in.Classification,
		Divergent:      in.Divergent,
		PartyCount:     in.PartyCount,
		IssueCount:     in.IssueCount,
	}, topK)
	if err != nil {
		return nil, ExemplarOutput{}, fmt.Errorf("find exemplars: %w", err)
	}
	if found == nil {
		found = []similarity.Candidate{}
	}
	return nil, ExemplarOutput{Exemplars: found}, nil
}

// GenerateInput are the generate_manifestation arguments.
type GenerateInput struct {
	Text         string `json:"text" jsonschema:"Full text of the source document"`
	DocumentType string `json:"document_type,omitempty" jsonschema:"Document type, e.g. habilitação de crédito"`
	AgentID      string `json:"agent_id,omitempty" jsonschema:"Agent whose exemplars and style apply"`
	Style        string `json:"style,omitempty" jsonschema:"Style guide of the agent"`
	Title        string `json:"title,omitempty" jsonschema:"Optional document title"`
}

// GenerateOutput is the generate_manifestation result.
type GenerateOutput struct {
	RunID         string   `json:"run_id"`
	Status        string   `json:"status"`
	Manifestation string   `json:"manifestation"`
	FinalScore    float64  `json:"final_score"`
	Certified     bool     `json:"certified"`
	Iterations    int      `json:"iterations"`
	CacheHit      bool     `json:"cache_hit"`
	CostEstimate  int      `json:"cost_estimate"`
	ElapsedMs     int64    `json:"elapsed_ms"`
	Trace         []string `json:"trace"`
}

func (s *Server) handleGenerate(ctx context.Context, _ *sdkmcp.CallToolRequest, in GenerateInput) (*sdkmcp.CallToolResult, GenerateOutput, error) {
	doc := document.New(in.Text)
	if in.Title != "" {
		doc = doc.WithTitle(in.Title)
	}
	docType := docTypeOr(in.DocumentType)
	strategy := s.strategy(docType)
	res, hit, err := s.orchestrator.RunCached(ctx, pipeline.Request{
		Document:     doc,
		DocumentType: docType,
		AgentID:      in.AgentID,
		Style:        in.Style,
		Strategy:     &strategy,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "generate_manifestation failed", "error", err)
		return nil, GenerateOutput{}, err
	}

	out := GenerateOutput{
		RunID:         res.RunID,
		Status:        string(res.Status),
		Manifestation: res.FinalDraft.Text,
		FinalScore:    res.FinalScore,
		Certified:     res.Certified,
		Iterations:    res.IterationCount,
		CacheHit:      hit,
		CostEstimate:  res.OracleCostEstimate,
		ElapsedMs:     res.ElapsedMs,
		Trace:         make([]string, len(res.Trace)),
	}
	for i, st := range res.Trace {
		out.Trace[i] = string(st)
	}
	return nil, out, nil
}

func docTypeOr(docType string) string {
	if strings.TrimSpace(docType) == "" {
		return document.TypeGeneric
	}
	return docType
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
