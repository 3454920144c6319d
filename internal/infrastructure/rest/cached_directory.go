package rest

import (
	"context"
	"fmt"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/pkg/cache"
)

// CachedDirectory wraps a RoomDirectory with TTL caching, so the status
// surface can poll room metadata without hammering the rooms API.
type CachedDirectory struct {
	base         ports.RoomDirectory
	rooms        *cache.Cache[*domain.Room]
	participants *cache.Cache[[]*domain.Participant]
}

// NewCachedDirectory builds the caching decorator. A zero TTL disables
// caching and passes every call through.
func NewCachedDirectory(base ports.RoomDirectory, ttl time.Duration) *CachedDirectory {
	d := &CachedDirectory{base: base}
	if ttl > 0 {
		d.rooms = cache.New[*domain.Room](ttl)
		d.participants = cache.New[[]*domain.Participant](ttl)
	}
	return d
}

// GetRoom gets room metadata with caching.
func (d *CachedDirectory) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	if d.rooms == nil {
		return d.base.GetRoom(ctx, roomID)
	}

	key := fmt.Sprintf("room:%s", roomID)
	if room, ok := d.rooms.Get(key); ok {
		return room, nil
	}

	room, err := d.base.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	d.rooms.Set(key, room)
	return room, nil
}

// ListParticipants lists room members with caching.
func (d *CachedDirectory) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	if d.participants == nil {
		return d.base.ListParticipants(ctx, roomID)
	}

	key := fmt.Sprintf("participants:%s", roomID)
	if members, ok := d.participants.Get(key); ok {
		return members, nil
	}

	members, err := d.base.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	d.participants.Set(key, members)
	return members, nil
}

// Invalidate drops cached entries for one room.
func (d *CachedDirectory) Invalidate(roomID domain.RoomID) {
	if d.rooms == nil {
		return
	}
	d.rooms.Delete(fmt.Sprintf("room:%s", roomID))
	d.participants.Delete(fmt.Sprintf("participants:%s", roomID))
}

// Close stops the cache sweepers.
func (d *CachedDirectory) Close() {
	if d.rooms == nil {
		return
	}
	d.rooms.Close()
	d.participants.Close()
}
