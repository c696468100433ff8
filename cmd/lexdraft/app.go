package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/lexdraft/audit"
	"github.com/sweetpotato0/lexdraft/cache"
	"github.com/sweetpotato0/lexdraft/chunking"
	"github.com/sweetpotato0/lexdraft/config"
	rediscache "github.com/sweetpotato0/lexdraft/contrib/cache/redis"
	"github.com/sweetpotato0/lexdraft/contrib/chunking/markdown"
	"github.com/sweetpotato0/lexdraft/contrib/chunking/token"
	"github.com/sweetpotato0/lexdraft/contrib/exemplar/mongo"
	"github.com/sweetpotato0/lexdraft/contrib/exemplar/pg"
	"github.com/sweetpotato0/lexdraft/contrib/pgstore"
	"github.com/sweetpotato0/lexdraft/contrib/provider"
	"github.com/sweetpotato0/lexdraft/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/lexdraft/middleware"
	"github.com/sweetpotato0/lexdraft/middleware/enricher"
	"github.com/sweetpotato0/lexdraft/middleware/errorhandler"
	"github.com/sweetpotato0/lexdraft/middleware/limiter"
	mwlogger "github.com/sweetpotato0/lexdraft/middleware/logger"
	"github.com/sweetpotato0/lexdraft/middleware/validator"
	"github.com/sweetpotato0/lexdraft/oracle"
	"github.com/sweetpotato0/lexdraft/pipeline"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
	"github.com/sweetpotato0/lexdraft/pkg/telemetry"
	"github.com/sweetpotato0/lexdraft/prompt"
	"github.com/sweetpotato0/lexdraft/similarity"
	"github.com/sweetpotato0/lexdraft/stage"
)

const (
	splitterWindow = "window"
	splitterToken  = "token"

	// tokenizerWords counts word tokens instead of running a BPE encoding.
	tokenizerWords = "words"
)

// app is the set of components a command runs against. close releases them
// in reverse order.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	chunker      *chunking.Chunker
	store        similarity.Store
	retriever    *similarity.Retriever
	history      *pgstore.Store
	orchestrator *pipeline.Orchestrator

	closers []func()
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newBaseApp opens everything except the oracle.
func (c *cli) newBaseApp(ctx context.Context) (*app, error) {
	a := &app{cfg: c.cfg, logger: logging.WithComponent("cli")}

	chunker, err := c.newChunker()
	if err != nil {
		return nil, err
	}
	a.chunker = chunker

	if err := a.openExemplars(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openHistory(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// newApp opens every component and builds the orchestrator.
func (c *cli) newApp(ctx context.Context) (*app, error) {
	if err := c.cfg.RequireOracle(); err != nil {
		return nil, err
	}
	a, err := c.newBaseApp(ctx)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, c.cfg.TelemetryConfig(version, c.trace))
	if err != nil {
		a.close()
		return nil, err
	}
	a.onClose(func() { _ = shutdown(context.Background()) })

	results, err := a.openCache(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	o, err := a.buildOracle()
	if err != nil {
		a.close()
		return nil, err
	}
	prompts, err := a.loadPrompts()
	if err != nil {
		a.close()
		return nil, err
	}
	caller := stage.NewCaller(o,
		stage.WithPolicy(a.cfg.RetryPolicy()),
		stage.WithOptions(a.cfg.OracleOptions()),
		stage.WithPrompts(prompts),
	)

	sink := audit.Sink(audit.NewLogSink(logging.WithComponent("audit")))
	opts := []pipeline.Option{
		pipeline.WithConfig(a.cfg.PipelineConfig()),
		pipeline.WithChunker(a.chunker),
		pipeline.WithRetriever(a.retriever),
		pipeline.WithCache(results),
	}
	if a.history != nil {
		sink = audit.Multi(sink, a.history)
		opts = append(opts, pipeline.WithRecorder(a.history))
	}
	opts = append(opts, pipeline.WithAuditSink(sink))

	a.orchestrator, err = pipeline.New(caller, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (c *cli) newChunker() (*chunking.Chunker, error) {
	var opts []chunking.Option
	switch c.tokenizer {
	case "":
	case tokenizerWords:
		opts = append(opts, chunking.WithCounter(token.New()))
	default:
		tk, err := tiktoken.NewTiktokenTokenizer(c.tokenizer)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer %q: %w", c.tokenizer, err)
		}
		opts = append(opts, chunking.WithCounter(tk))
	}
	if c.markdown {
		opts = append(opts, chunking.WithBoundaryDetector(chunking.FirstOf(markdown.New(), chunking.LegalStructure())))
	}
	switch c.splitter {
	case "", splitterWindow:
	case splitterToken:
		opts = append(opts, chunking.WithSplitter(token.New()))
	default:
		return nil, fmt.Errorf("unknown splitter %q (valid: %s, %s)", c.splitter, splitterWindow, splitterToken)
	}
	return chunking.New(opts...), nil
}

func (a *app) openExemplars(ctx context.Context) error {
	ex := a.cfg.Exemplars
	switch ex.Backend {
	case config.BackendPostgres:
		cfg := pg.DefaultConfig()
		cfg.DSN = ex.PostgresDSN
		store, err := pg.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open exemplar store: %w", err)
		}
		a.onClose(func() { _ = store.Close() })
		a.store = store
	case config.BackendMongo:
		cfg := mongo.DefaultConfig()
		cfg.URI = ex.MongoURI
		if ex.Database != "" {
			cfg.Database = ex.Database
		}
		if ex.Collection != "" {
			cfg.Collection = ex.Collection
		}
		store, err := mongo.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open exemplar store: %w", err)
		}
		a.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		})
		a.store = store
	default:
		a.logger.Debug("using in-memory exemplar store, exemplars are not persisted")
		a.store = similarity.NewMemoryStore()
	}
	a.retriever = similarity.NewRetriever(a.store)
	return nil
}

func (a *app) openHistory(ctx context.Context) error {
	dsn := a.cfg.Audit.PostgresDSN
	if dsn == "" {
		return nil
	}
	store, err := pgstore.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return err
	}
	a.onClose(store.Close)
	a.history = store
	return nil
}

func (a *app) openCache(ctx context.Context) (cache.Store[*pipeline.Result], error) {
	opts := []cache.Option{
		cache.WithTTL(a.cfg.CacheTTL()),
		cache.WithMaxSize(a.cfg.Cache.MaxSize),
		cache.WithSweepInterval(a.cfg.Cache.SweepInterval),
	}
	if a.cfg.Cache.Backend == config.BackendRedis {
		r := a.cfg.Cache.Redis
		c := rediscache.New[*pipeline.Result](&rediscache.Config{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		}, opts...)
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		c.Start(ctx)
		a.onClose(func() {
			c.Stop()
			_ = c.Close()
		})
		return c, nil
	}

	c := cache.New[*pipeline.Result](opts...)
	c.Start(ctx)
	a.onClose(c.Stop)
	return c, nil
}

// buildOracle wraps the configured provider in the middleware chain:
// per-stage options, prompt validation, request logging, rate limiting,
// error normalization, empty-reply rejection and response logging,
// outermost first.
func (a *app) buildOracle() (oracle.Oracle, error) {
	p, err := provider.New(a.cfg.ProviderConfig())
	if err != nil {
		return nil, err
	}
	log := logging.WithComponent("oracle").With("provider", p.Name())
	chain := middleware.NewChain(
		enricher.StageOptions(a.cfg.StageOptions()),
		validator.NewPromptValidator(validator.MaxChars(0)),
		mwlogger.NewRequestLogger(log),
		limiter.NewRateLimiter(a.cfg.LimiterConfig()),
		errorhandler.Normalizer(p.Name()),
		validator.NewResponseFilter(validator.NonEmpty),
		mwlogger.NewResponseLogger(log),
	)
	a.logger.Info("oracle configured", "provider", p.Name(), "model", a.cfg.Oracle.Model)
	return chain.Wrap(p), nil
}

// loadPrompts returns the built-in prompts with pipeline.prompt_dir applied.
func (a *app) loadPrompts() (*prompt.Library, error) {
	lib, err := prompt.Default()
	if err != nil {
		return nil, err
	}
	if a.cfg.Pipeline.PromptDir == "" {
		return lib, nil
	}
	replaced, err := lib.LoadDir(a.cfg.Pipeline.PromptDir)
	if err != nil {
		return nil, err
	}
	a.logger.Info("prompts overridden", "dir", a.cfg.Pipeline.PromptDir, "templates", replaced)
	return lib, nil
}
