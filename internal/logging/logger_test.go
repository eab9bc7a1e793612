package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestWithContextAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := WithRunID(context.Background(), "run-123")
	log.InfoContext(ctx, "converted", Source("a.json"), Chunks(3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "converted", line["msg"])
	assert.Equal(t, "run-123", line[FieldRunID])
	assert.Equal(t, "a.json", line[FieldSource])
	assert.EqualValues(t, 3, line[FieldChunks])
}

func TestWithContextWithoutRunID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo, "json")
	log.InfoContext(context.Background(), "hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, FieldRunID)
}

func TestTextFormatAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelWarn, "text")

	log.Info("dropped")
	log.Warn("kept", Condition("decode_error"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "msg=kept")
	assert.Contains(t, out, "condition=decode_error")
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, int64(1500), Duration(1500*time.Millisecond).Value.Int64())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, FieldCategory, Category("mitre-technique").Key)
	assert.Equal(t, FieldPath, Path("x.md").Key)
}

func TestRunIDFromNilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	assert.Equal(t, "", RunIDFrom(nil))
	assert.NotEmpty(t, NewRunID())
}
