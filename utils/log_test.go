package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace":    TRACE,
		"DEBUG":    DEBUG,
		" info ":   INFO,
		"warning":  WARN,
		"error":    ERROR,
		"critical": CRITICAL,
		"bogus":    INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, INFO)

	log.Trace("hidden %d", 1)
	log.Debug("hidden %d", 2)
	log.Info("decoded %d frames", 42)
	log.Warn("skipping %s", "BROKEN")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] decoded 42 frames")
	assert.Contains(t, lines[1], "[WARN] skipping BROKEN")

	assert.False(t, log.Enabled(TRACE))
	log.SetMinLevel(TRACE)
	assert.True(t, log.Enabled(TRACE))
	log.Trace("now visible")
	assert.Contains(t, buf.String(), "[TRACE] now visible")
}

func TestLogger_CriticalDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, TRACE)
	assert.NotPanics(t, func() { log.Critical("startup failed: %v", "boom") })
	assert.Contains(t, buf.String(), "[CRITICAL] startup failed: boom")
}

func TestLogger_ZapFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, DEBUG)
	log.Zap().Warn("decode failed", zap.Uint32("id", 0x100))
	assert.Contains(t, buf.String(), "[WARN] decode failed")
	assert.Contains(t, buf.String(), `"id": 256`)
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")
	log, err := NewFileLogger(path, DEBUG, false)
	require.NoError(t, err)
	log.Debug("hello")
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] hello")
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	assert.NotPanics(t, func() {
		log.Error("dropped")
		log.Zap().Info("dropped")
	})
	assert.NoError(t, log.Close())
}
