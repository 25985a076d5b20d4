package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelInfo)

	logger.With("plan_id", "abc123").Info("step started")

	assert.Contains(t, buf.String(), "plan_id=abc123")
}

func TestNoopDiscardsEverything(t *testing.T) {
	logger := NewNoop()
	// Must not panic and must chain.
	logger.With("k", "v").Error("ignored")
}

func TestDefaultRoundTrip(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(NewText(&buf, slog.LevelDebug))
	Default().Debug("visible")

	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected default logger output, got %q", buf.String())
	}
}
