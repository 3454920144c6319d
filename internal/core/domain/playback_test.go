package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampPosition(t *testing.T) {
	assert.Equal(t, 0.0, ClampPosition(-3, 100))
	assert.Equal(t, 42.5, ClampPosition(42.5, 100))
	assert.Equal(t, 100.0, ClampPosition(250, 100))
	// Unknown duration only clamps the lower bound.
	assert.Equal(t, 9999.0, ClampPosition(9999, 0))
}

func TestPlaybackStateNormalize(t *testing.T) {
	s := PlaybackState{Position: 80}
	s.Normalize()
	assert.Equal(t, 0.0, s.Position, "position without a video is meaningless")

	s = PlaybackState{
		VideoID:  "abc",
		Position: 500,
		Metadata: &VideoMetadata{Title: "t", DurationSeconds: 300},
	}
	s.Normalize()
	assert.Equal(t, 300.0, s.Position)
}

func TestGuardSeekExpiry(t *testing.T) {
	g := &ReconciliationGuard{}
	now := time.Now()

	g.BeginSeek(now, 2*time.Second)
	assert.True(t, g.Seeking(now))
	assert.True(t, g.Seeking(now.Add(1900*time.Millisecond)))
	assert.False(t, g.Seeking(now.Add(2*time.Second)))
	// Expiry check clears the flag.
	assert.False(t, g.SeekInFlight)
}

func TestGuardIntentWindow(t *testing.T) {
	g := &ReconciliationGuard{}
	now := time.Now()

	assert.False(t, g.IntentWithin(now, 2*time.Second))

	g.RecordIntent(IntentPause, now)
	assert.True(t, g.IntentWithin(now.Add(time.Second), 2*time.Second))
	assert.False(t, g.IntentWithin(now.Add(3*time.Second), 2*time.Second))

	g.Reset()
	assert.False(t, g.IntentWithin(now, 2*time.Second))
	assert.Equal(t, 0.0, g.LastOutboundPosition)
}
