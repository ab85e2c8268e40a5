package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"upper case", "ERROR", slog.LevelError},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			assert.True(t, logger.Enabled(ctx, tt.enable), "expected level %s to be enabled", tt.enable)
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()

	require.NotNil(t, logger.Logger)
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.NotSame(t, logger, Default())
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).With("component", "confirmation")

	logger.Info("job processed", "appointment_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "confirmation", entry["component"])
	assert.Equal(t, "abc", entry["appointment_id"])
	assert.Equal(t, "job processed", entry["msg"])
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.With("k", "v")
	require.NotNil(t, child)
	require.NotNil(t, child.Logger)
}
