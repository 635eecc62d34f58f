package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("", "production"))
	assert.Equal(t, FormatText, FormatFor("", "development"))
	assert.Equal(t, FormatJSON, FormatFor("JSON", "development"))
	assert.Equal(t, FormatText, FormatFor("text", "production"))
}

func TestNew_JSONCarriesServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf, Service: "api", Version: "1.0.0"})

	l.Debug("hidden")
	l.Info("sweep finished", "run_id", "r1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "sweep finished", record["msg"])
	assert.Equal(t, "api", record["service"])
	assert.Equal(t, "1.0.0", record["version"])
	assert.Equal(t, "r1", record["run_id"])
}

func TestContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := New(DefaultOptions())
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}
