package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/engine"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/internal/metrics"
	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/embedding"
	"github.com/harun/mnemo/pkg/llm"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Mnemo - memory consolidation and knowledge graph maintenance",
	Long: `Mnemo maintains an embedding-indexed knowledge base: it finds and
consolidates near-duplicate memories, classifies the relations between
linked memories, and keeps the knowledge graph pruned and connected.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mnemo/mnemo.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads and validates the effective configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newCommandLogger builds a quiet logger for one-shot commands; command
// output goes to stdout, log lines stay in the log file.
func newCommandLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     logLevel,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
}

// openEngine wires up an engine for a one-shot command. The returned
// cleanup closes the store and the logger.
func openEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	log, err := newCommandLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s, err := store.Open(store.Config{
		DBPath:    cfg.Database.Path,
		Dimension: cfg.Database.Dimension,
		Logger:    log.GetZerolog(),
	})
	if err != nil {
		_ = log.Close()
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Database.Dimension,
	})
	if err != nil {
		_ = s.Close()
		_ = log.Close()
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	var provider llm.Provider
	if cfg.LLM.Provider != "" {
		provider, err = llm.NewProvider(llm.Config{
			Provider: cfg.LLM.Provider,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
		})
		if err != nil {
			_ = s.Close()
			_ = log.Close()
			return nil, nil, fmt.Errorf("failed to create LLM provider: %w", err)
		}
	}

	eng, err := engine.New(engine.Config{
		SimilarityThreshold: cfg.Consolidation.Threshold,
		MaxCandidates:       cfg.Consolidation.MaxCandidates,
		MinCorpusSize:       cfg.Consolidation.MinCorpusSize,
		MinAge:              time.Duration(cfg.Consolidation.MinAgeDays) * 24 * time.Hour,
		AutoRedact:          cfg.Consolidation.AutoRedact,
		LockDir:             cfg.DataDir,
	}, engine.Deps{
		Store:    s,
		Embedder: embedder,
		LLM:      provider,
		Metrics:  metrics.NewMetrics(),
		Logger:   log.GetZerolog(),
	})
	if err != nil {
		_ = s.Close()
		_ = log.Close()
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	cleanup := func() {
		_ = s.Close()
		_ = log.Close()
	}

	return eng, cleanup, nil
}
