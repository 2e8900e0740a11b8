package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zap.AtomicLevel) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level.Level())
	return NewWithZap(zap.New(core)), logs
}

func TestLogger_WithFields(t *testing.T) {
	logger, logs := newObserved(zap.NewAtomicLevelAt(zap.DebugLevel))

	logger.WithFields(map[string]interface{}{
		"token": "0xabc",
		"block": uint64(12),
	}).WithError(errors.New("boom")).Warn("event dropped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "event dropped", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "0xabc", ctx["token"])
	assert.Equal(t, uint64(12), ctx["block"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, logs := newObserved(zap.NewAtomicLevelAt(zap.InfoLevel))

	logger.Debugf("hidden %d", 1)
	logger.Infof("shown %d", 2)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown 2", logs.All()[0].Message)
}

func TestFromContext(t *testing.T) {
	logger := NewNop()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseLogFormat("console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
