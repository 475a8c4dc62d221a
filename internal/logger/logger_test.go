package logger

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlefuse/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewManagerStdout(t *testing.T) {
	m, err := NewManager(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	defer m.Close()

	assert.NotNil(t, m.Logger())
	assert.NotNil(t, m.Component("fusion_engine"))
}

func TestNewManagerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "candlefuse.log")

	m, err := NewManager(config.LoggingConfig{
		Level:    "debug",
		Format:   "text",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)
	defer m.Close()

	m.Logger().Info("test entry")
	assert.FileExists(t, path)
}

func TestNewManagerFileOutputRequiresPath(t *testing.T) {
	_, err := NewManager(config.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}
