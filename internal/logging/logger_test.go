package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		message string
		level   Level
		want    string
	}{
		{name: "info", message: "dump started", level: LevelInfo, want: "[info] dump started"},
		{name: "warn", message: "removing /tmp/x", level: LevelWarn, want: "[warn] removing /tmp/x"},
		{name: "error", message: "exit 1", level: LevelError, want: "[error] exit 1"},
		{name: "default level", message: "hello", level: "", want: "[info] hello"},
		{name: "unknown level", message: "hello", level: "verbose", want: "[info] hello"},
		{name: "strips one trailing newline", message: "line\n\n", level: LevelInfo, want: "[info] line\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.message, tt.level))
		})
	}
}

func TestLog_Levels(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelError, "error"},
		{LevelWarn, "warn"},
		{LevelInfo, "info"},
		{"", "info"},
		{"bogus", "info"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			Log(zerolog.New(&buf), "connected to localhost:27017\n", tt.level)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.want, entry["level"])
			assert.Equal(t, "connected to localhost:27017", entry["message"])
		})
	}
}

func TestNew_ConsoleTagsLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Out: &buf})

	logger.Warn().Msg("removing stale archive\n")
	logger.Error().Msg("mongodump exited with code 1")
	logger.Info().Msg("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[warn] removing stale archive")
	assert.Contains(t, lines[1], "[error] mongodump exited with code 1")
	assert.Contains(t, lines[2], "[info] done")
	// Output is not a terminal, so no escape sequences.
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Out: &buf, JSON: true})

	logger.Info().Str("database", "app").Msg("backup completed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "app", entry["database"])
	assert.Contains(t, entry, "time")
}

func TestLevelFormatter_Color(t *testing.T) {
	plain := levelFormatter(true)
	colored := levelFormatter(false)

	assert.Equal(t, "[error]", plain("error"))
	assert.Equal(t, "[error]", plain("fatal"))
	assert.Equal(t, "[debug]", plain("debug"))
	assert.Contains(t, colored("error"), "\x1b[")
	assert.Contains(t, colored("error"), "[error]")
}
