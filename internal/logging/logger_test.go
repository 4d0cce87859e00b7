package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

func TestNew(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.DebugLevel))
	assert.NoError(t, logger.Sync())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty", Format: "json"})
	require.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestNew_LevelFiltering(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.WarnLevel))
}

func TestContextFields(t *testing.T) {
	ctx := WithTenant(context.Background(), "t1", "u1")
	ctx = WithRequestID(ctx, "req-42")

	fields := ContextFields(ctx)
	assert.Equal(t, []zap.Field{
		zap.String("tenant_id", "t1"),
		zap.String("user_id", "u1"),
		zap.String("request_id", "req-42"),
	}, fields)
}

func TestContextFields_Empty(t *testing.T) {
	assert.Nil(t, ContextFields(context.Background()))
	assert.Nil(t, ContextFields(nil))
}

func TestLoggerEmitsContextFields(t *testing.T) {
	logger, logs := NewObserved(zapcore.InfoLevel)

	ctx := WithTenant(context.Background(), "tenant-a", "user-b")
	logger.Info(ctx, "memory written", zap.String("memory_id", "m1"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "tenant-a", fields["tenant_id"])
	assert.Equal(t, "user-b", fields["user_id"])
	assert.Equal(t, "m1", fields["memory_id"])
}

func TestNamedAndWith(t *testing.T) {
	logger, logs := NewObserved(zapcore.InfoLevel)

	child := logger.Named("retrieval").With(zap.String("component", "ranker"))
	child.Info(context.Background(), "ranked")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "retrieval", entries[0].LoggerName)
	assert.Equal(t, "ranker", entries[0].ContextMap()["component"])
}
