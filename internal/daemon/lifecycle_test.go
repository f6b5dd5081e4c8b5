package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecyclePIDFile(t *testing.T) {
	d := createTestDaemon(t)
	defer func() { _ = d.store.Close() }()

	l := d.lifecycle

	require.NoError(t, l.Start())

	data, err := os.ReadFile(l.pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, l.Stop())
	_, err = os.Stat(l.pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestLifecycleStopWithoutPIDFile(t *testing.T) {
	d := createTestDaemon(t)
	defer func() { _ = d.store.Close() }()

	// Removing an absent PID file is not an error
	assert.NoError(t, d.lifecycle.Stop())
}

func TestIsRunning(t *testing.T) {
	d := createTestDaemon(t)
	defer func() { _ = d.store.Close() }()

	l := d.lifecycle

	t.Run("no pid file", func(t *testing.T) {
		assert.False(t, l.IsRunning())
	})

	t.Run("own pid", func(t *testing.T) {
		require.NoError(t, l.Start())
		defer func() { _ = l.Stop() }()
		assert.True(t, l.IsRunning())
	})

	t.Run("dead pid", func(t *testing.T) {
		require.NoError(t, os.WriteFile(l.pidFile, []byte(strconv.Itoa(1<<22)), 0644))
		defer func() { _ = os.Remove(l.pidFile) }()
		assert.False(t, l.IsRunning())
	})

	t.Run("garbage pid file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(l.pidFile, []byte("not a pid"), 0644))
		defer func() { _ = os.Remove(l.pidFile) }()
		assert.False(t, l.IsRunning())
	})
}

func TestGetPID(t *testing.T) {
	d := createTestDaemon(t)
	defer func() { _ = d.store.Close() }()

	l := d.lifecycle
	require.NoError(t, os.MkdirAll(filepath.Dir(l.pidFile), 0755))
	require.NoError(t, os.WriteFile(l.pidFile, []byte("12345"), 0644))
	defer func() { _ = os.Remove(l.pidFile) }()

	pid, err := l.GetPID()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}
