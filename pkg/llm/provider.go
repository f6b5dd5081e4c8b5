package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the single capability contract every LLM backend exposes.
// Implementations surface all failures as errors; callers decide whether
// a failure is recoverable.
type Provider interface {
	// Complete sends a prompt and returns the model's text output
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

	// Provider returns the backend name
	Provider() string
}

// CompleteOptions configures a single completion call
type CompleteOptions struct {
	MaxTokens int
	Timeout   time.Duration
}

// Config selects and configures a backend once at startup
type Config struct {
	Provider string // anthropic, openai, openrouter, ollama
	Model    string
	APIKey   string
	BaseURL  string
}

// NewProvider creates an LLM provider from config. The backend is chosen
// here, once; callers only ever see the Provider interface.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, ""), nil
	case "openrouter":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, "https://openrouter.ai/api/v1"), nil
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
