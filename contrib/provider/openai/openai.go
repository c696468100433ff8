package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/sweetpotato0/lexdraft/oracle"
)

const providerName = "openai"

// Endpoints of OpenAI-compatible services.
const (
	GroqBaseURL   = "https://api.groq.com/openai/v1/"
	CohereBaseURL = "https://api.cohere.ai/compatibility/v1/"
)

// Config holds OpenAI provider configuration. Name labels errors and logs
// when the client talks to an OpenAI-compatible service.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{Model: string(openai.ChatModelGPT4oMini)}
}

// Groq returns the configuration of Groq's OpenAI-compatible API.
func Groq(apiKey, model string) *Config {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &Config{Name: "groq", APIKey: apiKey, BaseURL: GroqBaseURL, Model: model}
}

// Cohere returns the configuration of Cohere's compatibility API.
func Cohere(apiKey, model string) *Config {
	if model == "" {
		model = "command-r-plus"
	}
	return &Config{Name: "cohere", APIKey: apiKey, BaseURL: CohereBaseURL, Model: model}
}

// Provider answers prompts with the chat completions API.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using official SDK. SDK-level retries are
// disabled; the pipeline retry policy owns them.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
	}
	if config.Name == "" {
		config.Name = providerName
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Name identifies the provider in logs and errors.
func (p *Provider) Name() string { return p.config.Name }

// Generate sends prompt as a single user message.
func (p *Provider) Generate(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.config.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(model),
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(opts.MaxOutputTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", oracle.Wrap(p.Name(), 0, fmt.Errorf("no choices returned"))
	}
	return completion.Choices[0].Message.Content, nil
}

func (p *Provider) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return oracle.Wrap(p.Name(), apiErr.StatusCode, err)
	}
	return oracle.Wrap(p.Name(), 0, err)
}
