// Package testutil provides structured logging helpers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// NewTestLogger returns a debug logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// LogRecord is one captured log line.
type LogRecord struct {
	Level   string
	Message string
	Attrs   map[string]any
}

// LogCapture collects the records of a logger built by NewCaptureLogger.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// NewCaptureLogger returns a debug logger whose records can be inspected.
func NewCaptureLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

// Records decodes every captured line.
func (c *LogCapture) Records() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []LogRecord
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		attrs := map[string]any{}
		if err := json.Unmarshal(line, &attrs); err != nil {
			continue
		}
		rec := LogRecord{Attrs: attrs}
		rec.Level, _ = attrs[slog.LevelKey].(string)
		rec.Message, _ = attrs[slog.MessageKey].(string)
		delete(attrs, slog.LevelKey)
		delete(attrs, slog.MessageKey)
		delete(attrs, slog.TimeKey)
		out = append(out, rec)
	}
	return out
}

// Find returns the captured records with message msg.
func (c *LogCapture) Find(msg string) []LogRecord {
	var out []LogRecord
	for _, r := range c.Records() {
		if r.Message == msg {
			out = append(out, r)
		}
	}
	return out
}
