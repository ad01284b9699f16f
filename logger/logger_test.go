package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

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
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetVerbose(t *testing.T) {
	buf := captureOutput(t)

	SetVerbose(false)
	Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetVerbose(true)
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponentTagsRecords(t *testing.T) {
	buf := captureOutput(t)

	Component("gemini").Info("connected", "model", "m")
	out := buf.String()
	assert.Contains(t, out, "component=gemini")
	assert.Contains(t, out, "model=m")
}

func TestStateTransitionAndReleaseFailed(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(slog.LevelDebug)

	StateTransition("abc", "IDLE", "CONNECTING")
	ReleaseFailed("abc", "microphone", errors.New("device gone"))

	out := buf.String()
	assert.Contains(t, out, "from=IDLE")
	assert.Contains(t, out, "to=CONNECTING")
	assert.Contains(t, out, "resource=microphone")
	assert.Contains(t, out, "device gone")
}

func TestRedactSensitiveData(t *testing.T) {
	key := "AIza" + strings.Repeat("x", 35)

	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"google key", "using " + key, "AIza...[REDACTED]", key},
		{"url key param", "wss://host/path?key=secret123&alt=1", "?key=[REDACTED]&alt=1", "secret123"},
		{"bearer", "Authorization: Bearer abc.def", "Bearer [REDACTED]", "abc"},
		{"plain", "nothing secret", "nothing secret", "REDACTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.input)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestConfigure_JSONWithComponentLevels(t *testing.T) {
	buf := captureOutput(t)

	require.NoError(t, Configure(&LoggingConfigSpec{
		DefaultLevel: "warn",
		Format:       FormatJSON,
		CommonFields: map[string]string{"service": "livevoice"},
		Components:   map[string]string{"playback": "debug"},
	}))
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	Info("dropped by default level")
	Component("capture").Info("dropped by default level too")
	Component("playback").Debug("scheduled")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "scheduled", rec["msg"])
	assert.Equal(t, "playback", rec["component"])
	assert.Equal(t, "livevoice", rec["service"])
}

func TestConfigure_Nil(t *testing.T) {
	assert.NoError(t, Configure(nil))
}
