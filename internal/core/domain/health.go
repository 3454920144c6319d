package domain

import "time"

// ConnectionStatus is the lifecycle state of the realtime channel.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Terminal reports whether the status requires a manual reconnect to leave.
func (s ConnectionStatus) Terminal() bool {
	return s == StatusError
}

// ConnectionHealth tracks transport liveness. It is owned exclusively by the
// session manager; other components observe it through status callbacks.
type ConnectionHealth struct {
	Status            ConnectionStatus `json:"status"`
	LastContact       time.Time        `json:"last_contact"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
}
