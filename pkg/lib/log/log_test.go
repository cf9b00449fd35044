package log

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelSpec(t *testing.T) {
	c := &Config{DefaultLevel: slog.LevelInfo, ComponentLevels: map[string]slog.Level{}}
	ParseLevelSpec(c, "discovery/dht=debug, core/host=warn ,error,bogus=nope")

	assert.Equal(t, slog.LevelError, c.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, c.LevelFor("discovery/dht"))
	assert.Equal(t, slog.LevelWarn, c.LevelFor("core/host"))
	assert.Equal(t, slog.LevelError, c.LevelFor("wasm"))
	_, ok := c.ComponentLevels["bogus"]
	assert.False(t, ok)
}

func TestLazyLogger_OutputAndLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	Configure(&Config{DefaultLevel: slog.LevelInfo, ComponentLevels: map[string]slog.Level{}})
	l := Logger("test/lazy")

	l.Debug("hidden")
	l.Info("visible", "key", "value")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "component=test/lazy")

	buf.Reset()
	SetLevel("test/lazy", slog.LevelDebug)
	l.Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestConfigure_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	Configure(&Config{DefaultLevel: slog.LevelInfo, ComponentLevels: map[string]slog.Level{}, Format: FormatJSON})
	defer Configure(ConfigFromEnv())

	Logger("test/json").Warn("json line")
	require.NotEmpty(t, buf.Bytes())
	assert.Contains(t, buf.String(), `"component":"test/json"`)
	assert.Contains(t, buf.String(), `"msg":"json line"`)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "12345678", TruncateID("1234567890", 8))
}
