package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/mnemo/internal/config"
)

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "mnemo.json")

	prev := cfgFile
	cfgFile = configPath
	defer func() { cfgFile = prev }()

	t.Run("writes default config", func(t *testing.T) {
		require.NoError(t, runInit(initCmd, nil))

		cfg, err := config.Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, 1536, cfg.Database.Dimension)
		assert.Equal(t, "0 3 * * *", cfg.Maintenance.Schedule)
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := runInit(initCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force overwrites", func(t *testing.T) {
		initForce = true
		defer func() { initForce = false }()

		require.NoError(t, runInit(initCmd, nil))
		_, err := os.Stat(configPath)
		assert.NoError(t, err)
	})
}
