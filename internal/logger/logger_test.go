package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Config{Format: "json", Level: "debug"}, &buf)
	defer func() { _ = closer.Close() }()

	log.Debug("spawned", "job", "j1", "pid", 42)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "spawned", rec["msg"])
	assert.Equal(t, "j1", rec["job"])
	assert.Equal(t, float64(42), rec["pid"])
}

func TestNewTextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "warn"}, &buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestColorHandlerKeepsColorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Color: true}, &buf)
	log.With("component", "manager").Error("boom")
	out := buf.String()
	assert.Contains(t, out, "\033[31mERROR")
	assert.Contains(t, out, "component=manager")
}

func TestColorHandlerWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewColorTextHandler(&buf, nil, false)).Info("x")
	assert.False(t, strings.Contains(buf.String(), "time="))
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runnerd.log")
	log, closer := New(Config{File: path, Color: true, MaxSizeMB: 1}, nil)
	log.Info("to file", "k", "v")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
	assert.NotContains(t, string(b), "\033[")
}

func TestFileWriterDefaults(t *testing.T) {
	w := Config{File: "x.log"}.FileWriter()
	assert.Equal(t, DefaultMaxSizeMB, w.MaxSize)
	assert.Equal(t, DefaultMaxBackups, w.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, w.MaxAge)
}
