package domain

import "time"

type RoomID string
type VideoID string
type UserID string

// VideoMetadata describes the media currently loaded in a room.
type VideoMetadata struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
}

// PlaybackState is the authoritative or locally-believed playback state of a
// room. Position is meaningful only while VideoID is set.
type PlaybackState struct {
	VideoID  VideoID        `json:"video_id,omitempty"`
	Paused   bool           `json:"is_paused"`
	Position float64        `json:"position_seconds"`
	Metadata *VideoMetadata `json:"video_metadata,omitempty"`
}

// HasVideo reports whether any media is loaded.
func (s *PlaybackState) HasVideo() bool {
	return s.VideoID != ""
}

// Duration returns the known media duration in seconds, or 0 when metadata
// has not arrived yet.
func (s *PlaybackState) Duration() float64 {
	if s.Metadata == nil {
		return 0
	}
	return float64(s.Metadata.DurationSeconds)
}

// ClampPosition bounds a position into [0, duration]. A zero duration means
// the duration is unknown and only the lower bound applies.
func ClampPosition(seconds, duration float64) float64 {
	if seconds < 0 {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}

// Normalize clamps Position against the known duration and zeroes it when no
// video is loaded.
func (s *PlaybackState) Normalize() {
	if !s.HasVideo() {
		s.Position = 0
		return
	}
	s.Position = ClampPosition(s.Position, s.Duration())
}

// Identity names the local participant for the room-join handshake.
type Identity struct {
	UserID   UserID
	Username string
}

// Room is the REST-side view of a watch room.
type Room struct {
	ID           RoomID    `json:"id"`
	Name         string    `json:"name"`
	Owner        UserID    `json:"owner"`
	CurrentVideo VideoID   `json:"current_video,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MaxMembers   int       `json:"max_members"`
}

// Participant is a member of a room as reported by the REST surface.
type Participant struct {
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}
