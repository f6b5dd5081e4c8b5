package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main mnemo configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Embedding provider
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// LLM backend
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Consolidation
	Consolidation ConsolidationConfig `json:"consolidation" mapstructure:"consolidation"`

	// Maintenance
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig holds the embedded store configuration
type DatabaseConfig struct {
	Path      string `json:"path" mapstructure:"path"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai, ollama
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// LLMConfig selects and configures the LLM backend. An empty provider
// disables LLM-assisted merge and classification.
type LLMConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, openrouter, ollama
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// ConsolidationConfig tunes candidate scanning and execution
type ConsolidationConfig struct {
	Threshold     float64 `json:"threshold" mapstructure:"threshold"`
	MaxCandidates int     `json:"max_candidates" mapstructure:"max_candidates"`
	MinCorpusSize int     `json:"min_corpus_size" mapstructure:"min_corpus_size"`
	MinAgeDays    int     `json:"min_age_days" mapstructure:"min_age_days"`
	MergeWithLLM  bool    `json:"merge_with_llm" mapstructure:"merge_with_llm"`
	AutoRedact    bool    `json:"auto_redact" mapstructure:"auto_redact"`
}

// MaintenanceConfig tunes the periodic pipeline
type MaintenanceConfig struct {
	Schedule        string  `json:"schedule" mapstructure:"schedule"` // cron expression; empty disables
	PruneThreshold  float64 `json:"prune_threshold" mapstructure:"prune_threshold"`
	EnrichLimit     int     `json:"enrich_limit" mapstructure:"enrich_limit"`
	OrphanThreshold float64 `json:"orphan_threshold" mapstructure:"orphan_threshold"`
	OrphanMaxLinks  int     `json:"orphan_max_links" mapstructure:"orphan_max_links"`
	ContextMinTags  int     `json:"context_min_tags" mapstructure:"context_min_tags"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dimension: 1536,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4",
		},
		Consolidation: ConsolidationConfig{
			Threshold:     0.92,
			MaxCandidates: 50,
			MinCorpusSize: 20,
			MinAgeDays:    7,
			MergeWithLLM:  true,
		},
		Maintenance: MaintenanceConfig{
			Schedule:        "0 3 * * *",
			PruneThreshold:  0.75,
			OrphanThreshold: 0.6,
			OrphanMaxLinks:  3,
			ContextMinTags:  2,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9464,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Dimension <= 0 {
		return fmt.Errorf("database dimension must be positive")
	}

	if c.Embedding.Provider == "" {
		return fmt.Errorf("embedding provider is required")
	}
	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid embedding provider %s (must be: openai, ollama)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api_key is required for the openai provider")
	}

	switch c.LLM.Provider {
	case "", "anthropic", "openai", "openrouter", "ollama":
	default:
		return fmt.Errorf("invalid llm provider %s (must be: anthropic, openai, openrouter, ollama)", c.LLM.Provider)
	}
	if (c.LLM.Provider == "anthropic" || c.LLM.Provider == "openai" || c.LLM.Provider == "openrouter") && c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required for the %s provider", c.LLM.Provider)
	}

	if c.Consolidation.Threshold <= 0 || c.Consolidation.Threshold > 1 {
		return fmt.Errorf("consolidation threshold must be in (0, 1], got %g", c.Consolidation.Threshold)
	}
	if c.Consolidation.MinCorpusSize < 0 {
		return fmt.Errorf("min_corpus_size must be >= 0")
	}
	if c.Consolidation.MinAgeDays < 0 {
		return fmt.Errorf("min_age_days must be >= 0")
	}

	if c.Maintenance.PruneThreshold < 0 || c.Maintenance.PruneThreshold > 1 {
		return fmt.Errorf("prune_threshold must be in [0, 1], got %g", c.Maintenance.PruneThreshold)
	}
	if c.Maintenance.OrphanThreshold < 0 || c.Maintenance.OrphanThreshold > 1 {
		return fmt.Errorf("orphan_threshold must be in [0, 1], got %g", c.Maintenance.OrphanThreshold)
	}
	if c.Maintenance.ContextMinTags < 0 {
		return fmt.Errorf("context_min_tags must be >= 0")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics port must be in (0, 65535], got %d", c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %s (must be: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
