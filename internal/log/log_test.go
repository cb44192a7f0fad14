package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json", &buf)
	l.Debug("hidden")
	l.Info("poll skipped", "component", "cycle", "reason", "not_ready")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "poll skipped", rec["msg"])
	assert.Equal(t, "cycle", rec["component"])
}

func TestNewText(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	New("debug", "", &buf).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestProductionDefaultsToJSON(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	var buf bytes.Buffer
	New("info", "", &buf).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
