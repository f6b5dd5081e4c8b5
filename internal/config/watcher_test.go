package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
		return nil
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mnemo.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}, "consolidation": {"threshold": 0.9}}`), 0o644))

	loader := NewLoader(configPath)
	changes := make(chan *Config, 1)

	w, err := NewWatcher(loader, zerolog.New(os.Stdout).Level(zerolog.Disabled), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}, "consolidation": {"threshold": 0.85}}`), 0o644))

	cfg := waitFor(t, changes)
	assert.Equal(t, 0.85, cfg.Consolidation.Threshold)
}

func TestWatcher_KeepsPreviousOnBadReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mnemo.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}}`), 0o644))

	loader := NewLoader(configPath)
	changes := make(chan *Config, 1)

	w, err := NewWatcher(loader, zerolog.New(os.Stdout).Level(zerolog.Disabled), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	// Broken write: no callback
	require.NoError(t, os.WriteFile(configPath, []byte(`{broken`), 0o644))

	select {
	case <-changes:
		t.Fatal("broken config should not trigger onChange")
	case <-time.After(1500 * time.Millisecond):
	}

	// A good write after recovers
	require.NoError(t, os.WriteFile(configPath, []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}, "consolidation": {"threshold": 0.8}}`), 0o644))
	cfg := waitFor(t, changes)
	assert.Equal(t, 0.8, cfg.Consolidation.Threshold)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mnemo.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}}`), 0o644))

	loader := NewLoader(configPath)
	changes := make(chan *Config, 1)

	w, err := NewWatcher(loader, zerolog.New(os.Stdout).Level(zerolog.Disabled), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.json"), []byte(`{"embedding": {"provider": "ollama"}, "llm": {"provider": "ollama"}}`), 0o644))

	select {
	case <-changes:
		t.Fatal("unrelated file should not trigger onChange")
	case <-time.After(1500 * time.Millisecond):
	}
}
