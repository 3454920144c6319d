package services

import (
	"context"
	"sync"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/internal/infrastructure/monitoring"
	"watchsync/pkg/config"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Phase is the reconciler's position in its per-session state machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseJoining  Phase = "joining"
	PhaseSynced   Phase = "synced"
	PhaseSeeking  Phase = "seeking"
	PhaseDiverged Phase = "diverged"
	PhaseClosed   Phase = "closed"
)

// SyncPolicy carries every timing window and threshold the reconciler uses.
// All values are tunable; defaults live in pkg/config.
type SyncPolicy struct {
	SeekSettleWindow       time.Duration
	SeekPushDelay          time.Duration
	PlayPauseDebounce      time.Duration
	ProgressPushInterval   time.Duration
	ProgressDeltaThreshold float64
	RemoteMinInterval      time.Duration
	DivergenceThreshold    float64
	LocalIntentWindow      time.Duration
	ManualSeekEchoWindow   time.Duration
	PauseOverride          config.PauseOverridePolicy
}

// PolicyFromConfig maps the sync section of the config onto a SyncPolicy.
func PolicyFromConfig(cfg *config.Config) SyncPolicy {
	return SyncPolicy{
		SeekSettleWindow:       cfg.Sync.SeekSettleWindow,
		SeekPushDelay:          cfg.Sync.SeekPushDelay,
		PlayPauseDebounce:      cfg.Sync.PlayPauseDebounce,
		ProgressPushInterval:   cfg.Sync.ProgressPushInterval,
		ProgressDeltaThreshold: cfg.Sync.ProgressDeltaThreshold,
		RemoteMinInterval:      cfg.Sync.RemoteMinInterval,
		DivergenceThreshold:    cfg.Sync.DivergenceThreshold,
		LocalIntentWindow:      cfg.Sync.LocalIntentWindow,
		ManualSeekEchoWindow:   cfg.Sync.ManualSeekEchoWindow,
		PauseOverride:          cfg.Sync.PauseOverride,
	}
}

// Reconciler keeps the local player in agreement with the room's shared
// playback state while suppressing feedback loops between local actions and
// server-pushed corrections.
//
// One mutex serializes every entry point and timer callback, so PlaybackState
// and the guard have a single logical writer per room session.
type Reconciler struct {
	policy  SyncPolicy
	session ports.RoomSession
	player  ports.PlayerControl
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	metrics *monitoring.Collector

	mu     sync.Mutex
	state  domain.PlaybackState
	guard  domain.ReconciliationGuard
	phase  Phase
	status domain.ConnectionStatus

	inbound *rate.Limiter

	seekPushTimer clockwork.Timer
	intentTimer   clockwork.Timer
	pendingIntent domain.IntentKind
	pauseDeferred bool
}

// NewReconciler builds a reconciler for one room session. metrics may be nil.
func NewReconciler(
	policy SyncPolicy,
	session ports.RoomSession,
	player ports.PlayerControl,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
	metrics *monitoring.Collector,
) *Reconciler {
	r := &Reconciler{
		policy:  policy,
		session: session,
		player:  player,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		phase:   PhaseIdle,
		status:  domain.StatusDisconnected,
	}
	r.inbound = rate.NewLimiter(rate.Every(policy.RemoteMinInterval), 1)
	return r
}

// Phase returns the current state-machine phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshPhase(r.clock.Now())
	return r.phase
}

// Snapshot returns a copy of the locally-believed playback state.
func (r *Reconciler) Snapshot() domain.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnLocalSeek handles a user-initiated seek. The player jumps immediately;
// the outbound push is deferred so that a burst of scrubbing collapses into
// one network call.
func (r *Reconciler) OnLocalSeek(target float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}

	now := r.clock.Now()
	target = domain.ClampPosition(target, r.state.Duration())

	r.guard.BeginSeek(now, r.policy.SeekSettleWindow)
	r.guard.LastManualSeekAt = now
	r.state.Position = target
	r.phase = PhaseSeeking

	r.player.SeekTo(target)
	r.logger.Debugw("local seek", "target", target)

	r.resetTimer(&r.seekPushTimer, r.policy.SeekPushDelay, r.flushSeekPush)
}

// OnLocalPlayPause handles a user play/pause toggle. Local state flips
// optimistically; the outbound push is debounced so rapid toggles collapse
// into one call reflecting the final intent.
func (r *Reconciler) OnLocalPlayPause(kind domain.IntentKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}

	now := r.clock.Now()
	r.guard.RecordIntent(kind, now)
	r.pauseDeferred = false
	r.state.Paused = kind == domain.IntentPause
	r.pendingIntent = kind

	if r.state.Paused {
		r.player.Pause()
		// The pause flush captures position itself; a pending position-only
		// push would be stale.
		r.stopTimer(&r.seekPushTimer)
	} else {
		r.player.Play()
	}

	r.resetTimer(&r.intentTimer, r.policy.PlayPauseDebounce, r.flushIntent)
}

// OnLocalProgress is called on every player progress tick while playing.
// Pushes are throttled and delta-gated; ticks during a settling seek are
// position updates only.
func (r *Reconciler) OnLocalProgress(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed || !r.state.HasVideo() || r.state.Paused {
		return
	}

	now := r.clock.Now()
	r.refreshPhase(now)
	seconds = domain.ClampPosition(seconds, r.state.Duration())
	r.state.Position = seconds

	if r.guard.Seeking(now) {
		return
	}
	if !r.guard.LastOutboundAt.IsZero() && now.Sub(r.guard.LastOutboundAt) < r.policy.ProgressPushInterval {
		return
	}
	delta := seconds - r.guard.LastOutboundPosition
	if delta < 0 {
		delta = -delta
	}
	if delta <= r.policy.ProgressDeltaThreshold {
		return
	}

	r.pushTime(seconds, now)
}

// OnRemoteState handles a server-pushed state frame. Frames are rate-limited,
// checked against recent local intent, and applied only when the divergence
// is outside the noise band.
func (r *Reconciler) OnRemoteState(server domain.PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}

	now := r.clock.Now()
	r.refreshPhase(now)

	if !r.inbound.AllowN(now, 1) {
		r.metrics.RecordDroppedInbound("rate_limited")
		r.logger.Debugw("remote state dropped", "reason", "rate_limited")
		return
	}
	r.guard.LastInboundAt = now

	server.Normalize()

	if server.VideoID != "" && server.VideoID != r.state.VideoID {
		r.applyVideoChange(server)
		return
	}

	r.applyRemotePause(server.Paused, now)
	r.applyRemotePosition(server.Position, now)
}

// OnInitialState applies the initial-state frame received on room join. It is
// applied unconditionally: position, pause flag and metadata, with a seek
// whenever the position is nonzero, even if a local seek is in flight.
func (r *Reconciler) OnInitialState(server domain.PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}

	server.Normalize()
	r.state = server
	r.guard.Reset()

	if server.Position > 0 {
		r.player.SeekTo(server.Position)
	}
	if server.Paused {
		r.player.Pause()
	} else {
		r.player.Play()
	}

	r.phase = PhaseSynced
	r.logger.Infow("initial state applied",
		"video_id", server.VideoID,
		"position", server.Position,
		"paused", server.Paused,
	)
}

// OnHealthChange tracks the session's connection status. Outbound pushes are
// suspended while not connected; the guard resets when the channel comes
// back so stale suppression windows cannot leak across connections.
func (r *Reconciler) OnHealthChange(status domain.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}

	previous := r.status
	r.status = status

	switch status {
	case domain.StatusConnecting:
		if r.phase == PhaseIdle {
			r.phase = PhaseJoining
		}
	case domain.StatusConnected:
		if previous == domain.StatusReconnecting || previous == domain.StatusDisconnected {
			r.guard.Reset()
			r.pauseDeferred = false
		}
	}
}

// Close ends the room session. Pending debounced pushes are cancelled.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed {
		return
	}
	r.phase = PhaseClosed
	r.stopTimer(&r.seekPushTimer)
	r.stopTimer(&r.intentTimer)
}

// --- internal ---

func (r *Reconciler) applyVideoChange(server domain.PlaybackState) {
	r.state = server
	r.guard.Reset()
	r.player.SeekTo(server.Position)
	if server.Paused {
		r.player.Pause()
	} else {
		r.player.Play()
	}
	r.phase = PhaseSynced
	r.logger.Infow("video changed", "video_id", server.VideoID, "position", server.Position)
}

func (r *Reconciler) applyRemotePause(serverPaused bool, now time.Time) {
	if serverPaused == r.state.Paused {
		return
	}

	if r.guard.IntentWithin(now, r.policy.LocalIntentWindow) {
		// A disagreeing flag this soon after a local toggle is almost always
		// the pre-toggle value echoed back.
		if r.policy.PauseOverride == config.PauseOverrideDeferOnce || !r.pauseDeferred {
			r.pauseDeferred = true
			r.metrics.RecordDroppedInbound("suppressed")
			r.logger.Debugw("remote pause flag suppressed",
				"server_paused", serverPaused,
				"local_intent", r.guard.LastLocalIntent,
			)
			return
		}
	}

	r.state.Paused = serverPaused
	r.pauseDeferred = false
	if serverPaused {
		r.player.Pause()
	} else {
		r.player.Play()
	}
	r.logger.Infow("remote pause applied", "paused", serverPaused)
}

func (r *Reconciler) applyRemotePosition(serverPos float64, now time.Time) {
	gap := serverPos - r.state.Position
	if gap < 0 {
		gap = -gap
	}
	r.metrics.SetPositionLag(gap)

	if gap <= r.policy.DivergenceThreshold {
		return
	}

	if r.guard.ManualSeekWithin(now, r.policy.ManualSeekEchoWindow) {
		// The frame raced a fresh local seek; pushing our position out wins
		// the race instead of bouncing the player back.
		r.stopTimer(&r.seekPushTimer)
		r.pushTime(r.state.Position, now)
		return
	}
	if r.guard.Seeking(now) {
		return
	}

	r.player.SeekTo(serverPos)
	r.state.Position = serverPos
	r.guard.BeginSeek(now, r.policy.SeekSettleWindow)
	r.phase = PhaseDiverged
	r.metrics.RecordCorrectiveSeek()
	r.logger.Infow("corrective seek", "server_position", serverPos, "gap", gap)
}

func (r *Reconciler) flushSeekPush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed || r.state.Paused {
		return
	}
	r.pushTime(r.state.Position, r.clock.Now())
}

func (r *Reconciler) flushIntent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseClosed || r.pendingIntent == "" {
		return
	}

	kind := r.pendingIntent
	r.pendingIntent = ""
	now := r.clock.Now()

	if !r.connected() {
		r.logger.Debugw("intent push skipped while disconnected", "kind", kind)
		return
	}

	paused := kind == domain.IntentPause
	if paused {
		// Capture position and push it in the same settle step as the flag.
		pos := domain.ClampPosition(r.player.CurrentTime(), r.state.Duration())
		r.state.Position = pos
		if err := r.session.SendPauseState(context.Background(), true); err != nil {
			r.logger.Debugw("pause push failed", "error", err)
			return
		}
		r.metrics.RecordOutbound("pause")
		r.pushTime(pos, now)
		return
	}

	if err := r.session.SendPauseState(context.Background(), false); err != nil {
		r.logger.Debugw("play push failed", "error", err)
		return
	}
	r.metrics.RecordOutbound("pause")
}

// pushTime sends a position update and records it in the guard. Failures
// leave the optimistic local state in place; the reconnect cycle plus the
// next progress tick re-push naturally. Caller must hold r.mu.
func (r *Reconciler) pushTime(seconds float64, now time.Time) {
	if !r.connected() {
		r.logger.Debugw("time push skipped while disconnected", "position", seconds)
		return
	}
	if err := r.session.SendTimeUpdate(context.Background(), seconds); err != nil {
		r.logger.Debugw("time push failed", "error", err)
		return
	}
	r.guard.RecordOutbound(seconds, now)
	r.metrics.RecordOutbound("time")
}

func (r *Reconciler) connected() bool {
	return r.status == domain.StatusConnected
}

// refreshPhase folds seek settle expiry back into the phase machine. Caller
// must hold r.mu.
func (r *Reconciler) refreshPhase(now time.Time) {
	if (r.phase == PhaseSeeking || r.phase == PhaseDiverged) && !r.guard.Seeking(now) {
		r.phase = PhaseSynced
	}
}

func (r *Reconciler) resetTimer(t *clockwork.Timer, d time.Duration, fn func()) {
	r.stopTimer(t)
	*t = r.clock.AfterFunc(d, fn)
}

func (r *Reconciler) stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
