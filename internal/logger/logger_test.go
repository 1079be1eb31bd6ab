package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	echo_log "github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerWritesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("manifest")
	log.Info("Manifest loaded", Int("entries", 3), Duration("elapsed", 1500*time.Millisecond), Bool("cached", false))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Manifest loaded", lines[0]["msg"])
	assert.Equal(t, "manifest", lines[0]["module"])
	assert.InDelta(t, 3, lines[0]["entries"], 0)
	assert.Equal(t, "1.5s", lines[0]["elapsed"])
	assert.Equal(t, false, lines[0]["cached"])
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Log(LogLevelInfo, "hidden")
	log.Log(LogLevelError, "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Equal(t, "shown", l["msg"])
	}
}

func TestWithAndNestedModules(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelInfo, nil).Module("api")
	child := base.With(String("session", "abc")).Module("sessions")
	child.Info("created")
	base.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "api.sessions", lines[0]["module"])
	assert.Equal(t, "abc", lines[0]["session"])
	assert.Equal(t, "api", lines[1]["module"])
	assert.NotContains(t, lines[1], "session")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, nil)
	log.WithContext(WithTraceID(t.Context(), "req-42")).Info("traced")
	log.WithContext(t.Context()).Info("untraced")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-42", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestErrorFieldHandlesNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, "error", Error(assert.AnError).Key)
}

func TestTextHandlerFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newTextHandler(&buf, slog.LevelInfo, time.UTC)
	l := slog.New(h)
	l.Info("Session created", slog.String("module", "visibility"), slog.String("id", "x y"))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "["))
	assert.Contains(t, line, "] INFO  [visibility] Session created id=\"x y\"")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/logs/showcase.log"
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)

	cl.Module("loud").Debug("kept")
	cl.Module("quiet").Warn("dropped")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data := readFile(t, path)
	assert.Contains(t, data, `"msg":"kept"`)
	assert.NotContains(t, data, "dropped")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestEchoAdapterRoutesThroughLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewEchoLoggerAdapter(NewSlogLogger(&buf, LogLevelInfo, nil).Module("echo"))
	adapter.Infof("listening on %s", ":8080")
	adapter.SetLevel(echo_log.WARN)
	assert.Equal(t, echo_log.WARN, adapter.Level())
	assert.Panics(t, func() { adapter.Panic("boom") })

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "listening on :8080", lines[0]["msg"])
	assert.Equal(t, "boom", lines[1]["msg"])
}
