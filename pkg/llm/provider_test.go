package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{
			name:     "anthropic",
			cfg:      Config{Provider: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "sk-ant-test"},
			wantName: "anthropic",
		},
		{
			name:     "openai",
			cfg:      Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
			wantName: "openai",
		},
		{
			name:     "openrouter",
			cfg:      Config{Provider: "openrouter", Model: "meta-llama/llama-3-8b", APIKey: "sk-or-test"},
			wantName: "openrouter",
		},
		{
			name:     "ollama",
			cfg:      Config{Provider: "ollama", Model: "llama3"},
			wantName: "ollama",
		},
		{
			name:    "unknown",
			cfg:     Config{Provider: "bard"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Provider())
		})
	}
}

func TestOllamaProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"response": "merged content"}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
	out, err := p.Complete(context.Background(), "merge these", CompleteOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "merged content", out)
}

func TestOllamaProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "missing")
	_, err := p.Complete(context.Background(), "hello", CompleteOptions{})
	assert.Error(t, err)
}

func TestOllamaProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"response": "late"}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
	_, err := p.Complete(context.Background(), "hello", CompleteOptions{Timeout: 20 * time.Millisecond})
	assert.Error(t, err)
}
