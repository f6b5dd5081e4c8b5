package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, 0.92, cfg.Consolidation.Threshold)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Database.Path)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		// Create a test config file
		testConfig := `{
			"data_dir": "` + tmpDir + `",
			"consolidation": {
				"threshold": 0.9,
				"merge_with_llm": false
			},
			"llm": {
				"provider": "ollama",
				"model": "llama3"
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o644))

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 0.9, cfg.Consolidation.Threshold)
		assert.False(t, cfg.Consolidation.MergeWithLLM)
		assert.Equal(t, "ollama", cfg.LLM.Provider)

		// Defaults survive for unset sections
		assert.Equal(t, 0.75, cfg.Maintenance.PruneThreshold)
		assert.Equal(t, filepath.Join(tmpDir, "mnemo.db"), cfg.Database.Path)
	})

	t.Run("reject unknown keys", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"consolidaton": {}}`), 0o644))

		loader := NewLoader(configPath)
		_, err := loader.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("reject mistyped values", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"consolidation": {"threshold": "high"}}`), 0o644))

		loader := NewLoader(configPath)
		_, err := loader.Load()
		assert.Error(t, err)
	})

	t.Run("reject malformed json", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0o644))

		loader := NewLoader(configPath)
		_, err := loader.Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Consolidation.Threshold = 0.88

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	// Round-trip
	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.88, loaded.Consolidation.Threshold)
	assert.Equal(t, tmpDir, loaded.DataDir)
}

func TestLoaderGetConfigPath(t *testing.T) {
	loader := NewLoader("/explicit/path.json")
	assert.Equal(t, "/explicit/path.json", loader.GetConfigPath())

	loader = NewLoader("")
	path := loader.GetConfigPath()
	assert.Contains(t, path, ".mnemo")
	assert.Contains(t, path, "mnemo.json")
}
