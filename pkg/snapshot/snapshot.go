package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"watchsync/internal/core/domain"
)

// Snapshot is the last known room position of this client, persisted so a
// restarted agent can rejoin where it left off.
type Snapshot struct {
	Version   string               `json:"version"`
	Timestamp time.Time            `json:"timestamp"`
	RoomID    domain.RoomID        `json:"room_id"`
	UserID    domain.UserID        `json:"user_id"`
	Username  string               `json:"username"`
	Playback  domain.PlaybackState `json:"playback"`
}

// Storage defines the snapshot backing store
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// Service writes and restores session snapshots
type Service struct {
	storage Storage
	version string
}

// NewService creates a snapshot service
func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
	}
}

// Save persists the session snapshot for one room.
func (s *Service) Save(ctx context.Context, snap *Snapshot) error {
	snap.Version = s.version
	snap.Timestamp = time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := snapshotName(snap.RoomID)
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load restores the snapshot for a room; ok is false when none exists.
func (s *Service) Load(ctx context.Context, roomID domain.RoomID) (*Snapshot, bool, error) {
	reader, err := s.storage.Load(ctx, snapshotName(roomID))
	if err != nil {
		return nil, false, nil
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, true, nil
}

// Delete removes a room's snapshot.
func (s *Service) Delete(ctx context.Context, roomID domain.RoomID) error {
	return s.storage.Delete(ctx, snapshotName(roomID))
}

func snapshotName(roomID domain.RoomID) string {
	return fmt.Sprintf("session-%s.json", roomID)
}
