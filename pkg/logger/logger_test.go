package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	log, err := New("debug", "console")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New("WARN", "json")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", "json")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSender(ctx, "room-1", "alice")
	cl.LogRequest(ctx, "POST", "/api/v1/policies/default/match", 200, 3)
	cl.LogError(context.Background(), errors.New("boom"), "failed to report uplink")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "room-1", fields["session_id"])
	assert.Equal(t, "alice", fields["sender_id"])
	assert.EqualValues(t, 200, fields["status_code"])

	assert.Equal(t, "failed to report uplink", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}
