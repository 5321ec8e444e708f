package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".scraper.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "pid "+strconv.Itoa(os.Getpid()))

	require.NoError(t, first.Release())
	assert.NoFileExists(t, path)
	assert.NoError(t, first.Release())

	second, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestAcquireWithUnreadableOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".scraper.lock")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	_, err := Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
	assert.NotContains(t, err.Error(), "pid")
}

func TestAcquireMissingDirectory(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "missing", ".scraper.lock"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
