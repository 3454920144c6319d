package ports

import (
	"context"

	"watchsync/internal/core/domain"
)

// RoomDirectory is the REST surface for room metadata and membership. It is
// not part of the reconciliation core; callers treat failures as transient.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error)
	ListParticipants(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error)
}
