package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidatorRules(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(v *Validator)
		wantError bool
	}{
		{"non-empty", func(v *Validator) { v.RequireNonEmpty("f", "gemini") }, false},
		{"empty", func(v *Validator) { v.RequireNonEmpty("f", "") }, true},
		{"blank", func(v *Validator) { v.RequireNonEmpty("f", "  ") }, true},
		{"positive", func(v *Validator) { v.RequirePositive("f", 3) }, false},
		{"zero", func(v *Validator) { v.RequirePositive("f", 0) }, true},
		{"negative", func(v *Validator) { v.RequirePositive("f", -1) }, true},
		{"positive float", func(v *Validator) { v.RequirePositiveFloat("f", 0.5) }, false},
		{"zero float", func(v *Validator) { v.RequirePositiveFloat("f", 0) }, true},
		{"positive duration", func(v *Validator) { v.RequirePositiveDuration("f", time.Second) }, false},
		{"zero duration", func(v *Validator) { v.RequirePositiveDuration("f", 0) }, true},
		{"in range", func(v *Validator) { v.ValidateRange("f", 3, 1, 10) }, false},
		{"range bound", func(v *Validator) { v.ValidateRange("f", 10, 1, 10) }, false},
		{"out of range", func(v *Validator) { v.ValidateRange("f", 11, 1, 10) }, true},
		{"score in range", func(v *Validator) { v.ValidateFloatRange("f", 9.0, 0, 10) }, false},
		{"score above range", func(v *Validator) { v.ValidateFloatRange("f", 10.5, 0, 10) }, true},
		{"score below range", func(v *Validator) { v.ValidateFloatRange("f", -0.1, 0, 10) }, true},
		{"redis db", func(v *Validator) { v.ValidateDBNumber("f", 15) }, false},
		{"redis db too large", func(v *Validator) { v.ValidateDBNumber("f", 16) }, true},
		{"one of", func(v *Validator) { v.ValidateOneOf("f", "redis", "memory", "redis") }, false},
		{"not one of", func(v *Validator) { v.ValidateOneOf("f", "etcd", "memory", "redis") }, true},
		{"check nil", func(v *Validator) { v.Check("f", nil) }, false},
		{"check error", func(v *Validator) { v.Check("f", errors.New("bad")) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.apply(v)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v (%v)", v.HasErrors(), tt.wantError, v.Errors())
			}
		})
	}
}

func TestValidatorAccumulates(t *testing.T) {
	v := NewValidator().
		RequireNonEmpty("oracle.model", "").
		RequirePositive("pipeline.max_iterations", 0).
		ValidateFloatRange("pipeline.score_threshold", 11, 0, 10)

	if got := len(v.Errors()); got != 3 {
		t.Fatalf("Errors() count = %d, want 3", got)
	}
	err := v.Error()
	if err == nil {
		t.Fatal("Error() = nil, want non-nil")
	}
	for _, field := range []string{"oracle.model", "pipeline.max_iterations", "pipeline.score_threshold"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Error() = %q, missing %s", err, field)
		}
	}
	if NewValidator().Error() != nil {
		t.Error("empty validator should not report an error")
	}
}

func TestValidateRedisConfig(t *testing.T) {
	if err := ValidateRedisConfig("localhost:6379", 0, "lexdraft:"); err != nil {
		t.Errorf("valid config: %v", err)
	}
	if err := ValidateRedisConfig("", 0, "lexdraft:"); err == nil {
		t.Error("missing addr should fail")
	}
	if err := ValidateRedisConfig("localhost:6379", 20, "lexdraft:"); err == nil {
		t.Error("invalid db should fail")
	}
	if err := ValidateRedisConfig("localhost:6379", 0, ""); err == nil {
		t.Error("missing prefix should fail")
	}
}

func TestValidateMongoDBConfig(t *testing.T) {
	if err := ValidateMongoDBConfig("mongodb://localhost:27017", "lexdraft", "training_exemplars"); err != nil {
		t.Errorf("valid config: %v", err)
	}
	if err := ValidateMongoDBConfig("mongodb://localhost:27017", "", "training_exemplars"); err == nil {
		t.Error("missing database should fail")
	}
}

func TestValidateOracleConfig(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		model       string
		temperature float64
		maxTokens   int
		wantError   bool
	}{
		{"valid", "key", "gemini-2.0-flash", 0.3, 8192, false},
		{"missing key", "", "gemini-2.0-flash", 0.3, 8192, true},
		{"missing model", "key", "", 0.3, 8192, true},
		{"temperature too high", "key", "gemini-2.0-flash", 2.5, 8192, true},
		{"no tokens", "key", "gemini-2.0-flash", 0.3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOracleConfig("gemini", tt.apiKey, tt.model, tt.temperature, tt.maxTokens)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateOracleConfig() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestMissingAPIKeyNamesVariable(t *testing.T) {
	err := ValidateOracleConfig("claude", "", "claude-sonnet-4-5", 0.3, 8192)
	if err == nil || !strings.Contains(err.Error(), "oracle.api_key") || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected the missing key and its variable, got %v", err)
	}
	if APIKeyEnv("openai") != "OPENAI_API_KEY" || APIKeyEnv("gemini") != "GEMINI_API_KEY" {
		t.Fatal("unexpected API key variable")
	}
}
