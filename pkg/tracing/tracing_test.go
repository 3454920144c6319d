package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := TraceHubOperation(context.Background(), "connect", "room-1")
	assert.NotNil(t, ctx)
	span.End()

	// Recording helpers are no-ops on a non-recording span.
	RecordError(ctx, errors.New("boom"))
	AddSpanAttributes(ctx, PositionKey.Float64(12.5))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "watchsync", cfg.ServiceName)
}
