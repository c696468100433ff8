package provider

import (
	"fmt"

	"github.com/sweetpotato0/lexdraft/contrib/provider/claude"
	"github.com/sweetpotato0/lexdraft/contrib/provider/gemini"
	"github.com/sweetpotato0/lexdraft/contrib/provider/openai"
	"github.com/sweetpotato0/lexdraft/oracle"
)

// Config selects and configures one oracle backend.
type Config struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Named is an oracle that can report its backend name.
type Named interface {
	oracle.Oracle
	Name() string
}

// New builds the oracle named by cfg.Name. Groq and Cohere are served by the
// OpenAI client through their compatible endpoints.
func New(cfg Config) (Named, error) {
	switch cfg.Name {
	case "", "gemini":
		return gemini.New(&gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model}), nil
	case "openai":
		return openai.New(&openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case "claude", "anthropic":
		return claude.New(&claude.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case "groq":
		return openai.New(compatible(openai.Groq(cfg.APIKey, cfg.Model), cfg.BaseURL)), nil
	case "cohere":
		return openai.New(compatible(openai.Cohere(cfg.APIKey, cfg.Model), cfg.BaseURL)), nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", cfg.Name)
}

func compatible(c *openai.Config, baseURL string) *openai.Config {
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return c
}
