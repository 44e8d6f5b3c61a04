package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expect    slog.Level
		expectErr bool
	}{
		{"debug", "debug", slog.LevelDebug, false},
		{"default-info", "", slog.LevelInfo, false},
		{"warn", "warning", slog.LevelWarn, false},
		{"error", "ERROR", slog.LevelError, false},
		{"invalid", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := levelFromString(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, level)
		})
	}
}

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Environment: "production", Output: &buf})
	require.NoError(t, err)

	l.Info("participant joined", "meeting_id", "m-1", "user_id", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "participant joined", record["msg"])
	assert.Equal(t, "m-1", record["meeting_id"])
}

func TestNewWithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classroom.log")
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Environment: "dev", File: path, MaxSizeMB: 1, Output: &buf})
	require.NoError(t, err)

	l.Debug("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestInitAndL(t *testing.T) {
	t.Cleanup(func() {
		once = sync.Once{}
		global = nil
	})

	var buf bytes.Buffer
	l, err := Init(Config{Level: "debug", Environment: "dev", Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, l)

	again, err := Init(Config{Level: "error"})
	require.NoError(t, err)
	assert.Same(t, l, again)
	assert.Same(t, l, L())
}
