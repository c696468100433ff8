package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sweetpotato0/lexdraft/oracle"
)

const providerName = "gemini"

// DefaultModel is the model used when neither config nor call options name one.
const DefaultModel = "gemini-2.0-flash"

// Config holds Gemini provider configuration
type Config struct {
	APIKey string
	Model  string
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{APIKey: apiKey, Model: DefaultModel}
}

// Provider answers prompts with the Google generative AI SDK. The client is
// created on first use.
type Provider struct {
	config *Config

	once    sync.Once
	client  *genai.Client
	initErr error
}

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &Provider{config: config}
}

// Name identifies the provider in logs and errors.
func (p *Provider) Name() string { return providerName }

func (p *Provider) connect(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		if p.config.APIKey == "" {
			p.initErr = fmt.Errorf("gemini: api key is required")
			return
		}
		p.client, p.initErr = genai.NewClient(context.WithoutCancel(ctx), option.WithAPIKey(p.config.APIKey))
	})
	return p.client, p.initErr
}

// Generate sends prompt and concatenates the text parts of the first candidate.
func (p *Provider) Generate(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return "", err
	}

	name := opts.Model
	if name == "" {
		name = p.config.Model
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(float32(opts.Temperature))
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// classify maps REST and gRPC failures to oracle errors.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return oracle.Wrap(providerName, gerr.Code, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return oracle.Wrap(providerName, statusFromCode(st.Code()), err)
	}
	return oracle.Wrap(providerName, 0, err)
}

func statusFromCode(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return 0
}
