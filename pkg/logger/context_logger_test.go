package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestFromContextAnnotatesSessionFields(t *testing.T) {
	base, logs := observedLogger()

	ctx := WithUser(WithRoom(context.Background(), "movie-night"), "u-42")
	FromContext(ctx, base).Infow("hello")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "movie-night", fields["room_id"])
	assert.Equal(t, "u-42", fields["user_id"])
}

func TestFromContextWithoutValuesReturnsBase(t *testing.T) {
	base, logs := observedLogger()

	FromContext(context.Background(), base).Infow("plain")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Empty(t, entries[0].ContextMap())
}

func TestSessionScopesLogger(t *testing.T) {
	base, logs := observedLogger()

	Session(base, "movie-night", "u-42").Infow("scoped")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "movie-night", fields["room_id"])
	assert.Equal(t, "u-42", fields["user_id"])
}
