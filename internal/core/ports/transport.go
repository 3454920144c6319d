package ports

import (
	"context"

	"watchsync/internal/core/domain"
)

// Hub procedure and frame names, shared by the transport binding and the
// session manager.
const (
	ProcJoinRoom      = "JoinRoom"
	ProcUpdateTime    = "UpdateVideoTime"
	ProcUpdatePause   = "UpdateVideoPauseState"
	FrameInitialState = "InitialVideoState"
	FrameStateUpdated = "VideoStateUpdated"
)

// EventKind names an inbound hub event.
type EventKind string

const (
	EventInitialState      EventKind = "initial_state"
	EventStateUpdate       EventKind = "state_update"
	EventConnectionChanged EventKind = "connection_changed"
)

// HubEvent is one inbound event from the realtime channel. State is set for
// the two state frame kinds, Status for connection changes.
type HubEvent struct {
	Kind   EventKind
	State  *domain.PlaybackState
	Status domain.ConnectionStatus
}

// EventHandler receives every inbound hub event through a single dispatch
// point. Handlers must not block; they are called from the transport's read
// loop.
type EventHandler func(HubEvent)

// HubTransport is the realtime channel to the backend hub. Implementations
// own the wire framing; callers own reconnect policy.
type HubTransport interface {
	// Connect dials the hub. It returns once the channel is usable.
	Connect(ctx context.Context) error

	// Invoke sends a named procedure call with a JSON payload and waits for
	// the write to complete.
	Invoke(ctx context.Context, method string, payload interface{}) error

	// Bind installs the event handler. Must be called before Connect.
	Bind(handler EventHandler)

	// Stop closes the channel. Safe to call when never connected.
	Stop(ctx context.Context) error
}
