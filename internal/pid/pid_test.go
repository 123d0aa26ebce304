package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/packmon/internal/errors"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(os.TempDir(), pidFile)
	t.Cleanup(func() { _ = os.Remove(path) })

	require.NoError(t, Write())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, Remove())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(os.TempDir(), pidFile)
	t.Cleanup(func() { _ = os.Remove(path) })

	// The file holds our own PID, which is as alive as a process gets.
	require.NoError(t, Write())

	err := Write()
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.ErrAlreadyRunning, appErr.Code())
}

func TestWriteOverwritesStalePID(t *testing.T) {
	path := filepath.Join(os.TempDir(), pidFile)
	t.Cleanup(func() { _ = os.Remove(path) })

	// No live process has a PID this large on any sane kernel config.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o600))

	require.NoError(t, Write())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestRemoveMissingFileIsFine(t *testing.T) {
	require.NoError(t, Remove())
}
