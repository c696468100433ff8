// Package config loads lexdraft settings from an optional YAML file and the
// environment, and converts them into the option types of each component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/contrib/provider"
	"github.com/sweetpotato0/lexdraft/contrib/provider/claude"
	"github.com/sweetpotato0/lexdraft/contrib/provider/gemini"
	"github.com/sweetpotato0/lexdraft/contrib/provider/openai"
	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/middleware/limiter"
	"github.com/sweetpotato0/lexdraft/oracle"
	"github.com/sweetpotato0/lexdraft/pipeline"
	"github.com/sweetpotato0/lexdraft/pkg/telemetry"
	"github.com/sweetpotato0/lexdraft/retry"
	"github.com/sweetpotato0/lexdraft/stage"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the complete application configuration.
type Config struct {
	Oracle     OracleConfig                 `yaml:"oracle"`
	Pipeline   PipelineConfig               `yaml:"pipeline"`
	Retry      RetryConfig                  `yaml:"retry"`
	RateLimit  RateLimitConfig              `yaml:"rate_limit"`
	Cache      CacheConfig                  `yaml:"cache"`
	Exemplars  ExemplarConfig               `yaml:"exemplars"`
	Audit      AuditConfig                  `yaml:"audit"`
	Log        LogConfig                    `yaml:"log"`
	Telemetry  TelemetryConfig              `yaml:"telemetry"`
	Strategies map[string]chunking.Strategy `yaml:"strategies"`
}

// OracleConfig selects the text-generation backend.
type OracleConfig struct {
	Provider        string  `yaml:"provider"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	// Stages overrides generation options per pipeline stage (analysis,
	// planning, drafting, review, refinement).
	Stages map[string]StageOracleConfig `yaml:"stages"`
}

// StageOracleConfig holds the options one stage overrides; zero keeps the
// global value.
type StageOracleConfig struct {
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// PipelineConfig tunes the review loop and chunked drafting.
type PipelineConfig struct {
	ScoreThreshold    float64 `yaml:"score_threshold"`
	MaxIterations     int     `yaml:"max_iterations"`
	ExemplarCount     int     `yaml:"exemplar_count"`
	MaxChunkDrafts    int     `yaml:"max_chunk_drafts"`
	ChunkConcurrency  int     `yaml:"chunk_concurrency"`
	MaxConcurrentRuns int     `yaml:"max_concurrent_runs"`
	// PromptDir holds *.tmpl files replacing built-in prompts of the same name.
	PromptDir string `yaml:"prompt_dir"`
}

// RetryConfig is the retry policy of oracle calls.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
}

// RateLimitConfig throttles oracle calls.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

// CacheConfig selects the result cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	TTLSeconds    int           `yaml:"ttl_seconds"`
	MaxSize       int           `yaml:"max_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the shared cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ExemplarConfig selects the exemplar store.
type ExemplarConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
	MongoURI    string `yaml:"mongo_uri"`
	Database    string `yaml:"database"`
	Collection  string `yaml:"collection"`
}

// AuditConfig enables the Postgres audit and run-history store.
type AuditConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// TelemetryConfig configures tracing. Traces are exported when Endpoint is
// set or the CLI runs with --trace.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := retry.DefaultPolicy()
	limit := limiter.DefaultConfig()
	pc := pipeline.DefaultConfig()
	opts := oracle.DefaultOptions()
	return &Config{
		Oracle: OracleConfig{
			Provider:        "gemini",
			Temperature:     opts.Temperature,
			MaxOutputTokens: int(opts.MaxOutputTokens),
		},
		Pipeline: PipelineConfig{
			ScoreThreshold:    pc.ScoreThreshold,
			MaxIterations:     pc.MaxIterations,
			ExemplarCount:     pc.ExemplarCount,
			MaxChunkDrafts:    pc.MaxChunkDrafts,
			ChunkConcurrency:  pc.ChunkConcurrency,
			MaxConcurrentRuns: pc.MaxConcurrentRuns,
		},
		Retry: RetryConfig{
			MaxRetries:        policy.MaxRetries,
			InitialDelay:      policy.InitialDelay,
			MaxDelay:          policy.MaxDelay,
			BackoffMultiplier: policy.BackoffMultiplier,
			Timeout:           policy.Timeout,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: limit.RequestsPerSecond,
			Burst:             limit.Burst,
			Cooldown:          limit.Cooldown,
		},
		Cache: CacheConfig{
			Backend:       BackendMemory,
			TTLSeconds:    3600,
			MaxSize:       500,
			SweepInterval: 5 * time.Minute,
			Redis:         RedisConfig{Addr: "localhost:6379", Prefix: "lexdraft:results:"},
		},
		Exemplars: ExemplarConfig{
			Backend:    BackendMemory,
			Database:   "lexdraft",
			Collection: "training_exemplars",
		},
		Log:       LogConfig{Format: "json", Level: "info"},
		Telemetry: TelemetryConfig{SampleRatio: 1},
	}
}

// DefaultModel returns the model used by provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return openai.DefaultConfig().Model
	case "claude", "anthropic":
		return claude.DefaultModel
	case "groq":
		return openai.Groq("", "").Model
	case "cohere":
		return openai.Cohere("", "").Model
	default:
		return gemini.DefaultModel
	}
}

// LoadEnvFile loads variables from a .env file without overriding those
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = DefaultModel(cfg.Oracle.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	v := NewValidator()
	str := func(key string, dst *string) {
		if s, ok := lookup(key); ok && s != "" {
			*dst = s
		}
	}
	integer := func(key string, dst *int) {
		if s, ok := lookup(key); ok && s != "" {
			n, err := strconv.Atoi(s)
			v.Check(key, err)
			if err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if s, ok := lookup(key); ok && s != "" {
			f, err := strconv.ParseFloat(s, 64)
			v.Check(key, err)
			if err == nil {
				*dst = f
			}
		}
	}

	str("LEXDRAFT_PROVIDER", &c.Oracle.Provider)
	str("LEXDRAFT_MODEL", &c.Oracle.Model)
	str("LEXDRAFT_BASE_URL", &c.Oracle.BaseURL)
	float("LEXDRAFT_TEMPERATURE", &c.Oracle.Temperature)
	float("LEXDRAFT_SCORE_THRESHOLD", &c.Pipeline.ScoreThreshold)
	integer("LEXDRAFT_MAX_ITERATIONS", &c.Pipeline.MaxIterations)
	integer("LEXDRAFT_MAX_CONCURRENT_RUNS", &c.Pipeline.MaxConcurrentRuns)
	str("LEXDRAFT_PROMPT_DIR", &c.Pipeline.PromptDir)
	str("LEXDRAFT_CACHE_BACKEND", &c.Cache.Backend)
	integer("LEXDRAFT_CACHE_TTL_SECONDS", &c.Cache.TTLSeconds)
	integer("LEXDRAFT_CACHE_MAX_SIZE", &c.Cache.MaxSize)
	str("LEXDRAFT_REDIS_ADDR", &c.Cache.Redis.Addr)
	str("LEXDRAFT_REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("LEXDRAFT_EXEMPLAR_BACKEND", &c.Exemplars.Backend)
	str("LEXDRAFT_POSTGRES_DSN", &c.Exemplars.PostgresDSN)
	str("LEXDRAFT_MONGODB_URI", &c.Exemplars.MongoURI)
	str("LEXDRAFT_AUDIT_DSN", &c.Audit.PostgresDSN)
	str("LEXDRAFT_LOG_FORMAT", &c.Log.Format)
	str("LEXDRAFT_LOG_LEVEL", &c.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	float("LEXDRAFT_TRACE_SAMPLE_RATIO", &c.Telemetry.SampleRatio)
	str("LEXDRAFT_ENV", &c.Telemetry.Environment)

	if c.Oracle.APIKey == "" {
		str(APIKeyEnv(c.Oracle.Provider), &c.Oracle.APIKey)
	}
	return v.Error()
}

// Validate checks every range. It does not require an API key; see
// RequireOracle.
func (c *Config) Validate() error {
	v := NewValidator()
	v.ValidateOneOf("oracle.provider", c.Oracle.Provider, "gemini", "openai", "claude", "anthropic", "groq", "cohere")
	v.ValidateFloatRange("oracle.temperature", c.Oracle.Temperature, 0, 2)
	v.RequirePositive("oracle.max_output_tokens", c.Oracle.MaxOutputTokens)
	for name, st := range c.Oracle.Stages {
		field := "oracle.stages." + name
		v.ValidateOneOf(field, name, stage.NameAnalysis, stage.NamePlanning, stage.NameDrafting, stage.NameReview, stage.NameRefinement)
		v.ValidateFloatRange(field+".temperature", st.Temperature, 0, 2)
		v.ValidateRange(field+".max_output_tokens", st.MaxOutputTokens, 0, 1<<20)
	}

	v.ValidateFloatRange("pipeline.score_threshold", c.Pipeline.ScoreThreshold, 0, 10)
	v.RequirePositive("pipeline.max_iterations", c.Pipeline.MaxIterations)
	v.RequirePositive("pipeline.exemplar_count", c.Pipeline.ExemplarCount)
	v.RequirePositive("pipeline.max_chunk_drafts", c.Pipeline.MaxChunkDrafts)
	v.RequirePositive("pipeline.chunk_concurrency", c.Pipeline.ChunkConcurrency)
	v.RequirePositive("pipeline.max_concurrent_runs", c.Pipeline.MaxConcurrentRuns)

	v.ValidateRange("retry.max_retries", c.Retry.MaxRetries, 0, 10)
	v.RequirePositiveDuration("retry.initial_delay", c.Retry.InitialDelay)
	v.RequirePositiveDuration("retry.max_delay", c.Retry.MaxDelay)
	v.ValidateFloatRange("retry.backoff_multiplier", c.Retry.BackoffMultiplier, 1, 10)

	v.RequirePositiveFloat("rate_limit.requests_per_second", c.RateLimit.RequestsPerSecond)
	v.RequirePositive("rate_limit.burst", c.RateLimit.Burst)

	v.ValidateOneOf("cache.backend", c.Cache.Backend, BackendMemory, BackendRedis)
	v.RequirePositive("cache.ttl_seconds", c.Cache.TTLSeconds)
	v.RequirePositive("cache.max_size", c.Cache.MaxSize)
	v.RequirePositiveDuration("cache.sweep_interval", c.Cache.SweepInterval)
	if c.Cache.Backend == BackendRedis {
		v.Check("cache.redis", ValidateRedisConfig(c.Cache.Redis.Addr, c.Cache.Redis.DB, c.Cache.Redis.Prefix))
	}

	v.ValidateOneOf("exemplars.backend", c.Exemplars.Backend, BackendMemory, BackendPostgres, BackendMongo)
	switch c.Exemplars.Backend {
	case BackendPostgres:
		v.RequireNonEmpty("exemplars.postgres_dsn", c.Exemplars.PostgresDSN)
	case BackendMongo:
		v.Check("exemplars.mongo", ValidateMongoDBConfig(c.Exemplars.MongoURI, c.Exemplars.Database, c.Exemplars.Collection))
	}

	v.ValidateOneOf("log.format", c.Log.Format, "json", "text")
	v.ValidateOneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	for name, s := range c.Strategies {
		v.Check("strategies."+name, s.Validate())
	}
	return v.Error()
}

// RequireOracle checks the settings needed to call the oracle.
func (c *Config) RequireOracle() error {
	return ValidateOracleConfig(c.Oracle.Provider, c.Oracle.APIKey, c.Oracle.Model, c.Oracle.Temperature, c.Oracle.MaxOutputTokens)
}

// ProviderConfig returns the oracle backend selection.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Name:    c.Oracle.Provider,
		APIKey:  c.Oracle.APIKey,
		BaseURL: c.Oracle.BaseURL,
		Model:   c.Oracle.Model,
	}
}

// OracleOptions returns the per-call generation options.
func (c *Config) OracleOptions() oracle.Options {
	return oracle.Options{
		Temperature:     c.Oracle.Temperature,
		MaxOutputTokens: int64(c.Oracle.MaxOutputTokens),
		Model:           c.Oracle.Model,
	}
}

// StageOptions returns the per-stage option overrides.
func (c *Config) StageOptions() map[string]oracle.Options {
	out := make(map[string]oracle.Options, len(c.Oracle.Stages))
	for name, st := range c.Oracle.Stages {
		out[name] = oracle.Options{Temperature: st.Temperature, MaxOutputTokens: int64(st.MaxOutputTokens)}
	}
	return out
}

// RetryPolicy returns the oracle retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:        c.Retry.MaxRetries,
		InitialDelay:      c.Retry.InitialDelay,
		MaxDelay:          c.Retry.MaxDelay,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		Timeout:           c.Retry.Timeout,
	}
}

// LimiterConfig returns the oracle rate limit.
func (c *Config) LimiterConfig() limiter.Config {
	return limiter.Config{
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
		Cooldown:          c.RateLimit.Cooldown,
	}
}

// PipelineConfig returns the orchestrator loop configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		ScoreThreshold:    c.Pipeline.ScoreThreshold,
		MaxIterations:     c.Pipeline.MaxIterations,
		ExemplarCount:     c.Pipeline.ExemplarCount,
		MaxChunkDrafts:    c.Pipeline.MaxChunkDrafts,
		ChunkConcurrency:  c.Pipeline.ChunkConcurrency,
		MaxConcurrentRuns: c.Pipeline.MaxConcurrentRuns,
		CacheTTL:          c.CacheTTL(),
	}
}

// CacheTTL returns the result cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Strategy returns the chunking strategy of docType, preferring a
// configured override.
func (c *Config) Strategy(docType string) chunking.Strategy {
	for name, s := range c.Strategies {
		if document.SameType(name, docType) {
			return s
		}
	}
	return chunking.StrategyFor(docType)
}

// TelemetryConfig returns the tracing setup; force exports spans even
// without a collector endpoint.
func (c *Config) TelemetryConfig(version string, force bool) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "lexdraft",
		ServiceVersion: version,
		Environment:    c.Telemetry.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		SampleRatio:    c.Telemetry.SampleRatio,
		Disable:        !force && c.Telemetry.Endpoint == "",
	}
}
