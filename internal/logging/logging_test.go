package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	require.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Info("server starting", "port", 5000)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "server starting", line["msg"])
	require.Equal(t, float64(5000), line["port"])
}

func TestNewLogger_DebugUsesText(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, true)

	require.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("configuration loaded", "provider", "google")
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "provider=google")
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	logger, closer := New(Options{File: path})
	logger.Info("provider call failed", "provider", "deepseek")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"provider":"deepseek"`)
}

func TestNew_NoFile(t *testing.T) {
	logger, closer := New(Options{})
	require.NotNil(t, logger)
	require.NoError(t, closer.Close())
}

func TestNew_CustomOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Debug: true, Output: &buf})
	logger.Debug("configuration loaded")
	require.NoError(t, closer.Close())
	require.Contains(t, buf.String(), "configuration loaded")
}
