package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civitai-scraper/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "42.png")

	n, err := WriteFileAtomic(path, strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, len("image-bytes"), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "42.png")

	_, err := WriteFileAtomic(path, failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	ok, err := FileExists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = FileExists(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "scraper.log")
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "warn", File: logFile}, false)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	logger.Warn("disk almost full")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk almost full")

	logger, _, err = NewLogger(config.LoggingConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, _, err = NewLogger(config.LoggingConfig{Level: "chatty"}, false)
	assert.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "never", FormatTimestamp(time.Time{}))
	assert.Equal(t, "2024-03-01 10:20:30", FormatTimestamp(time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)))

	assert.True(t, IsWithin(time.Now().Add(-time.Minute), time.Hour))
	assert.False(t, IsWithin(time.Now().Add(-2*time.Hour), time.Hour))
	assert.False(t, IsWithin(time.Time{}, time.Hour))
}
