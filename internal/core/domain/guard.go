package domain

import "time"

// IntentKind is a local play/pause intent.
type IntentKind string

const (
	IntentPlay  IntentKind = "play"
	IntentPause IntentKind = "pause"
)

// ReconciliationGuard carries the ephemeral markers that keep local and
// remote playback updates from feeding back into each other. It is scoped to
// one room session, reset on reconnect and never persisted. All fields are
// mutated only by the owning reconciler.
type ReconciliationGuard struct {
	SeekInFlight     bool
	SeekExpiry       time.Time
	LastManualSeekAt time.Time

	LastLocalIntent   IntentKind
	LastLocalIntentAt time.Time

	LastOutboundPosition float64
	LastOutboundAt       time.Time

	LastInboundAt time.Time
}

// BeginSeek marks a locally-initiated seek as settling until expiry. There is
// no completion signal from the player, so expiry is a fixed timeout.
func (g *ReconciliationGuard) BeginSeek(now time.Time, settle time.Duration) {
	g.SeekInFlight = true
	g.SeekExpiry = now.Add(settle)
}

// Seeking reports whether a seek is still settling at now.
func (g *ReconciliationGuard) Seeking(now time.Time) bool {
	if g.SeekInFlight && now.Before(g.SeekExpiry) {
		return true
	}
	g.SeekInFlight = false
	return false
}

// RecordIntent stores the most recent local play/pause intent.
func (g *ReconciliationGuard) RecordIntent(kind IntentKind, now time.Time) {
	g.LastLocalIntent = kind
	g.LastLocalIntentAt = now
}

// IntentWithin reports whether a local play/pause intent was issued within
// window of now.
func (g *ReconciliationGuard) IntentWithin(now time.Time, window time.Duration) bool {
	return g.LastLocalIntent != "" && now.Sub(g.LastLocalIntentAt) < window
}

// ManualSeekWithin reports whether a user-initiated seek happened within
// window of now.
func (g *ReconciliationGuard) ManualSeekWithin(now time.Time, window time.Duration) bool {
	return !g.LastManualSeekAt.IsZero() && now.Sub(g.LastManualSeekAt) < window
}

// RecordOutbound stores what was last pushed so further pushes can be
// delta-gated and throttled against it.
func (g *ReconciliationGuard) RecordOutbound(position float64, now time.Time) {
	g.LastOutboundPosition = position
	g.LastOutboundAt = now
}

// Reset clears every marker. Called when a session reconnects.
func (g *ReconciliationGuard) Reset() {
	*g = ReconciliationGuard{}
}
