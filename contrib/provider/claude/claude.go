package claude

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/lexdraft/oracle"
)

const providerName = "claude"

// Config holds Claude provider configuration
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// DefaultModel is the model used when the config names none.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   DefaultModel,
	}
}

// Provider answers prompts with the Messages API.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	if config.Model == "" {
		config.Model = DefaultModel
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
		client: anthropic.NewClient(options...),
	}
}

// Name identifies the provider in logs and errors.
func (p *Provider) Name() string { return providerName }

// Generate sends prompt as a single user turn and joins the text blocks of the answer.
func (p *Provider) Generate(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = oracle.DefaultOptions().MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens: maxTokens,
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", oracle.Wrap(providerName, apiErr.StatusCode, err)
		}
		return "", oracle.Wrap(providerName, 0, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
