package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	roomIDKey contextKey = iota
	userIDKey
)

// WithRoom returns a context carrying the room identifier for log scoping.
func WithRoom(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, roomIDKey, roomID)
}

// WithUser returns a context carrying the user identifier for log scoping.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// FromContext derives a logger annotated with any session identifiers
// the context carries. Returns the base logger unchanged when none are set.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := []interface{}{}
	if roomID, ok := ctx.Value(roomIDKey).(string); ok && roomID != "" {
		fields = append(fields, "room_id", roomID)
	}
	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		fields = append(fields, "user_id", userID)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// Session annotates a logger with the identifiers of a joined room session.
func Session(base *zap.SugaredLogger, roomID, userID string) *zap.SugaredLogger {
	return base.With("room_id", roomID, "user_id", userID)
}
