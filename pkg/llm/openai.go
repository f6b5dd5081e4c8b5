package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible
// endpoints (OpenRouter, vLLM, LM Studio)
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates a new OpenAI-compatible provider. An empty
// baseURL targets api.openai.com.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	name := "openai"
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
		name = "openrouter"
	}

	return &OpenAIProvider{
		client: openai.NewClient(options...),
		model:  model,
		name:   name,
	}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return p.name
}

// Complete makes a single-turn chat completion call
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", p.name, err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}

	return response.Choices[0].Message.Content, nil
}
