package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"start", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "daemon")
		assert.Contains(t, helpText, "maintenance")
	})
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "mnemo.pid")

	t.Run("no pid file", func(t *testing.T) {
		assert.False(t, isRunning(pidFile))
	})

	t.Run("own pid", func(t *testing.T) {
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, isRunning(pidFile))
	})

	t.Run("dead pid", func(t *testing.T) {
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(1<<22)), 0644))
		assert.False(t, isRunning(pidFile))
	})

	t.Run("garbage content", func(t *testing.T) {
		require.NoError(t, os.WriteFile(pidFile, []byte("garbage"), 0644))
		assert.False(t, isRunning(pidFile))
	})
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "mnemo.pid")

	_, err := readPID(pidFile)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(pidFile, []byte("4242"), 0644))
	pid, err := readPID(pidFile)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}
