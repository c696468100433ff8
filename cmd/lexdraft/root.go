package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/config"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli holds the global flags and the configuration loaded before every
// subcommand runs.
type cli struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	trace      bool

	// Chunker tuning.
	tokenizer string
	markdown  bool
	splitter  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "lexdraft",
		Short: "Draft legal manifestations from court filings",
		Long: `lexdraft reads a court filing, analyses it, plans and drafts a manifestation,
then reviews and refines the draft until it reaches the score threshold or the
iteration limit.

Commands:
  generate   Run the full pipeline on a document
  chunk      Show how a document is split and prioritized
  similar    Store and rank exemplars (accepted manifestations)
  runs       Inspect recorded runs
  mcp        Serve the pipeline as MCP tools`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format (json, text)")
	flags.BoolVar(&c.trace, "trace", false, "export traces even without OTEL_EXPORTER_OTLP_ENDPOINT")
	flags.StringVar(&c.tokenizer, "tokenizer", "", "tiktoken encoding or model for token counts (default: chars/4 estimate)")
	flags.BoolVar(&c.markdown, "markdown", false, "treat markdown headings as section boundaries")
	flags.StringVar(&c.splitter, "splitter", splitterWindow, "splitter for oversized sections (window, token)")

	root.AddCommand(
		c.generateCmd(),
		c.chunkCmd(),
		c.similarCmd(),
		c.runsCmd(),
		c.mcpCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	logging.Configure(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	c.cfg = cfg
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Skips configuration loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lexdraft version %s\n", version)
		},
	}
}
