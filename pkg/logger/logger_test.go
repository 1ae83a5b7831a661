package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewJSONIncludesModuleAndVersion(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Module: "docshell", Version: "v1.2.3", Level: "info", Writer: &buf})

	log.Info("navigated", "path", "/overview/introduction")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "docshell", rec["module"])
	assert.Equal(t, "v1.2.3", rec["version"])
	assert.Equal(t, "/overview/introduction", rec["path"])
	assert.Nil(t, rec["source"], "source is only attached at debug level")
}

func TestNewTextFormatAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Module: "docshell", Level: "warn", Format: "TEXT", Writer: &buf})

	log.Info("dropped")
	log.Warn("kept", "ref", "colors")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.True(t, strings.Contains(out, "msg=kept"), out)
	assert.Contains(t, out, "ref=colors")
}
