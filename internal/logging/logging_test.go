package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqworkbench/dqsync/internal/config"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got, tt.in)
		} else {
			assert.Error(t, err, tt.in)
		}
	}
}

func TestSetup_JSONAndLevel(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	l, err := Setup(config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer l.Close()

	slog.Info("hidden")
	slog.Warn("upload: chunk failed", "chunk", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "upload: chunk failed", line["msg"])
	assert.Equal(t, float64(3), line["chunk"])

	buf.Reset()
	require.NoError(t, l.SetLevel("debug"))
	slog.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.Error(t, l.SetLevel("nope"))
}

func TestSetup_File(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "dqsync.log")
	var buf bytes.Buffer
	l, err := Setup(config.LoggingConfig{Level: "info", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	slog.Info("runner: run finished")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runner: run finished")
	assert.Contains(t, buf.String(), "runner: run finished")
}
