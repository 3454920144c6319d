package ports

import (
	"context"

	"watchsync/internal/core/domain"
)

// HealthFunc is notified on every connection status change.
type HealthFunc func(domain.ConnectionStatus)

// RoomSession is the narrow call surface the reconciler uses to push state.
// Send failures while disconnected are logged and swallowed; the reconciler
// never treats them as fatal.
type RoomSession interface {
	SendTimeUpdate(ctx context.Context, seconds float64) error
	SendPauseState(ctx context.Context, paused bool) error
	Status() domain.ConnectionStatus
}

// SessionLifecycle is the full session manager surface used by the room
// controller and the agent.
type SessionLifecycle interface {
	RoomSession

	// Connect establishes the channel and joins the room. Idempotent:
	// concurrent calls attach to the in-flight attempt.
	Connect(ctx context.Context, roomID domain.RoomID, identity domain.Identity) error

	// Reconnect is the manual reconnection path. No-op when connected.
	Reconnect(ctx context.Context) error

	// Health returns a snapshot of connection health.
	Health() domain.ConnectionHealth

	// OnHealthChange registers a status listener. Must be called before
	// Connect.
	OnHealthChange(fn HealthFunc)

	// Close tears the session down. Safe even if connect never completed.
	Close(ctx context.Context) error
}
