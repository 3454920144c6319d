package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/internal/infrastructure/monitoring"
	"watchsync/pkg/config"
	"watchsync/pkg/retry"
	"watchsync/pkg/tracing"
	"watchsync/pkg/validation"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// lifecycle is the manager's internal state machine. Unlike
// domain.ConnectionStatus this tracks who is allowed to start work, not what
// the outside world sees.
type lifecycle int

const (
	stateIdle lifecycle = iota
	stateConnecting
	stateConnected
	stateReconnecting
	stateClosed
)

// Options carries the session manager's tunables.
type Options struct {
	HealthCheckInterval time.Duration
	Backoff             retry.Config
	OutboundRate        rate.Limit
	OutboundBurst       int
}

// OptionsFromConfig maps the session section of the config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HealthCheckInterval: cfg.Session.HealthCheckInterval,
		Backoff: retry.Config{
			Enabled:      true,
			MaxAttempts:  cfg.Session.Reconnect.MaxAttempts,
			InitialDelay: cfg.Session.Reconnect.InitialDelay,
			MaxDelay:     cfg.Session.Reconnect.MaxDelay,
			Multiplier:   cfg.Session.Reconnect.Multiplier,
			Jitter:       cfg.Session.Reconnect.Jitter,
		},
		OutboundRate:  rate.Limit(cfg.Session.Outbound.MessagesPerSecond),
		OutboundBurst: cfg.Session.Outbound.Burst,
	}
}

type attempt struct {
	done chan struct{}
	err  error
}

type joinPayload struct {
	RoomID   domain.RoomID `json:"room_id"`
	Username string        `json:"username"`
	UserID   domain.UserID `json:"user_id"`
}

type timePayload struct {
	RoomID  domain.RoomID `json:"room_id"`
	Seconds float64       `json:"seconds"`
}

type pausePayload struct {
	RoomID domain.RoomID `json:"room_id"`
	Paused bool          `json:"is_paused"`
}

// Manager owns one logical hub connection per room visit. It hides
// reconnect/backoff from the reconciler and exposes the narrow send/status
// surface of ports.RoomSession.
type Manager struct {
	transport ports.HubTransport
	opts      Options
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
	metrics   *monitoring.Collector
	limiter   *rate.Limiter

	mu        sync.Mutex
	state     lifecycle
	health    domain.ConnectionHealth
	roomID    domain.RoomID
	identity  domain.Identity
	inflight  *attempt
	healthFns []ports.HealthFunc
	onInitial func(domain.PlaybackState)
	onUpdate  func(domain.PlaybackState)

	stopCh   chan struct{}
	stopOnce sync.Once
	healthCh chan domain.ConnectionStatus

	gen               int
	healthLoopStarted bool
}

// NewManager builds a session manager over the given transport. metrics may
// be nil.
func NewManager(
	transport ports.HubTransport,
	opts Options,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
	metrics *monitoring.Collector,
) *Manager {
	m := &Manager{
		transport: transport,
		opts:      opts,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		limiter:   rate.NewLimiter(opts.OutboundRate, opts.OutboundBurst),
		state:     stateIdle,
		health:    domain.ConnectionHealth{Status: domain.StatusDisconnected},
		stopCh:    make(chan struct{}),
		healthCh:  make(chan domain.ConnectionStatus, 16),
	}
	transport.Bind(m.handleEvent)
	go m.notifyLoop()
	return m
}

// OnHealthChange registers a connection status listener. Must be called
// before Connect.
func (m *Manager) OnHealthChange(fn ports.HealthFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthFns = append(m.healthFns, fn)
}

// OnStateFrames registers the consumers of inbound state frames. Must be
// called before Connect.
func (m *Manager) OnStateFrames(onInitial, onUpdate func(domain.PlaybackState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInitial = onInitial
	m.onUpdate = onUpdate
}

// Status returns the externally visible connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health.Status
}

// Health returns a snapshot of connection health.
func (m *Manager) Health() domain.ConnectionHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Connect establishes the channel and performs the room-join handshake.
// Idempotent: a call while an attempt is in flight awaits that attempt
// instead of starting a second one.
func (m *Manager) Connect(ctx context.Context, roomID domain.RoomID, identity domain.Identity) error {
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
	}
	if err := validation.ValidateUsername(identity.Username); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
	}

	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if m.state == stateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		att := m.inflight
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-att.done:
			return att.err
		}
	}

	att := &attempt{done: make(chan struct{})}
	m.inflight = att
	m.state = stateConnecting
	m.roomID = roomID
	m.identity = identity
	m.setHealthLocked(domain.StatusConnecting)
	m.mu.Unlock()

	err := m.dial(ctx)

	m.mu.Lock()
	att.err = err
	stopLate := false
	if m.state == stateClosed {
		// The session was closed while the dial was in flight; the fresh
		// connection must not outlive it.
		att.err = domain.ErrSessionClosed
		stopLate = err == nil
	} else if err == nil {
		m.state = stateConnected
		m.health.LastContact = m.clock.Now()
		m.health.ReconnectAttempts = 0
		m.setHealthLocked(domain.StatusConnected)
		m.ensureHealthLoopLocked()
	} else {
		m.state = stateIdle
		m.setHealthLocked(domain.StatusDisconnected)
	}
	m.inflight = nil
	close(att.done)
	m.mu.Unlock()

	if stopLate {
		_ = m.transport.Stop(ctx)
		return att.err
	}

	if err != nil {
		m.logger.Warnw("connect failed", "room_id", roomID, "error", err)
	} else {
		m.logger.Infow("joined room", "room_id", roomID, "user_id", identity.UserID)
	}
	return att.err
}

// Reconnect is the manual reconnection path. It no-ops when connected,
// otherwise stops any half-open connection and restarts the handshake.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if m.state == stateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.roomID == "" {
		m.mu.Unlock()
		return domain.ErrConnectFailed
	}
	roomID, identity := m.roomID, m.identity
	m.gen++ // abort any automatic reconnect loop
	m.health.ReconnectAttempts = 0
	m.state = stateIdle
	m.mu.Unlock()

	_ = m.transport.Stop(ctx)
	return m.Connect(ctx, roomID, identity)
}

// SendTimeUpdate pushes a position update. Failures while disconnected are
// logged and reported as domain.ErrNotConnected; they are never fatal to the
// caller.
func (m *Manager) SendTimeUpdate(ctx context.Context, seconds float64) error {
	return m.invoke(ctx, ports.ProcUpdateTime, func(roomID domain.RoomID) interface{} {
		return timePayload{RoomID: roomID, Seconds: seconds}
	})
}

// SendPauseState pushes the pause flag.
func (m *Manager) SendPauseState(ctx context.Context, paused bool) error {
	return m.invoke(ctx, ports.ProcUpdatePause, func(roomID domain.RoomID) interface{} {
		return pausePayload{RoomID: roomID, Paused: paused}
	})
}

// Close tears the session down. Safe to call even if connect never
// completed, and more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = stateClosed
	m.gen++
	m.setHealthLocked(domain.StatusDisconnected)
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })
	err := m.transport.Stop(ctx)
	m.logger.Infow("session closed")
	return err
}

// --- internal ---

func (m *Manager) dial(ctx context.Context) error {
	ctx, span := tracing.TraceHubOperation(ctx, "connect", string(m.roomID))
	defer span.End()

	if err := m.transport.Connect(ctx); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
	}

	payload := joinPayload{
		RoomID:   m.roomID,
		Username: m.identity.Username,
		UserID:   m.identity.UserID,
	}
	if err := m.transport.Invoke(ctx, ports.ProcJoinRoom, payload); err != nil {
		tracing.RecordError(ctx, err)
		_ = m.transport.Stop(ctx)
		return fmt.Errorf("%w: join handshake: %v", domain.ErrConnectFailed, err)
	}
	return nil
}

func (m *Manager) invoke(ctx context.Context, method string, build func(domain.RoomID) interface{}) error {
	m.mu.Lock()
	connected := m.state == stateConnected
	roomID := m.roomID
	m.mu.Unlock()

	if !connected {
		m.logger.Debugw("send dropped while disconnected", "method", method)
		return domain.ErrNotConnected
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := m.transport.Invoke(ctx, method, build(roomID)); err != nil {
		m.logger.Warnw("hub invoke failed", "method", method, "error", err)
		return err
	}

	m.mu.Lock()
	m.health.LastContact = m.clock.Now()
	m.mu.Unlock()
	return nil
}

// handleEvent is the transport's single dispatch point. It runs on the
// transport's read loop, so everything heavy is handed off.
func (m *Manager) handleEvent(ev ports.HubEvent) {
	switch ev.Kind {
	case ports.EventInitialState:
		m.touchContact()
		if fn := m.frameFn(true); fn != nil && ev.State != nil {
			fn(*ev.State)
		}
	case ports.EventStateUpdate:
		m.touchContact()
		if fn := m.frameFn(false); fn != nil && ev.State != nil {
			fn(*ev.State)
		}
	case ports.EventConnectionChanged:
		if ev.Status != domain.StatusConnected {
			m.connectionLost()
		}
	}
}

func (m *Manager) frameFn(initial bool) func(domain.PlaybackState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if initial {
		return m.onInitial
	}
	return m.onUpdate
}

func (m *Manager) touchContact() {
	m.mu.Lock()
	m.health.LastContact = m.clock.Now()
	m.mu.Unlock()
}

// connectionLost starts the automatic reconnect loop after a
// transport-detected drop.
func (m *Manager) connectionLost() {
	m.mu.Lock()
	if m.state != stateConnected {
		m.mu.Unlock()
		return
	}
	m.state = stateReconnecting
	m.gen++
	gen := m.gen
	m.setHealthLocked(domain.StatusReconnecting)
	m.mu.Unlock()

	m.logger.Warnw("hub connection lost, reconnecting")
	go m.reconnectLoop(gen)
}

// reconnectLoop retries the dial with capped exponential backoff. After the
// configured number of attempts the session settles in terminal error status
// and waits for a manual Reconnect.
func (m *Manager) reconnectLoop(gen int) {
	for attemptNum := 0; attemptNum < m.opts.Backoff.MaxAttempts; attemptNum++ {
		delay := retry.DelayFor(m.opts.Backoff, attemptNum)
		select {
		case <-m.stopCh:
			return
		case <-m.clock.After(delay):
		}

		m.mu.Lock()
		if m.state != stateReconnecting || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.health.ReconnectAttempts = attemptNum + 1
		m.mu.Unlock()

		m.metrics.RecordReconnectAttempt()
		m.logger.Infow("reconnect attempt", "attempt", attemptNum+1, "delay", delay)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = m.transport.Stop(ctx)
		err := m.dial(ctx)
		cancel()

		m.mu.Lock()
		if m.state != stateReconnecting || m.gen != gen {
			m.mu.Unlock()
			return
		}
		if err == nil {
			m.state = stateConnected
			m.health.LastContact = m.clock.Now()
			m.setHealthLocked(domain.StatusConnected)
			m.mu.Unlock()
			m.logger.Infow("reconnected", "attempts", attemptNum+1)
			return
		}
		m.mu.Unlock()
		m.logger.Warnw("reconnect attempt failed", "attempt", attemptNum+1, "error", err)
	}

	m.mu.Lock()
	if m.state == stateReconnecting && m.gen == gen {
		m.state = stateIdle
		m.setHealthLocked(domain.StatusError)
	}
	m.mu.Unlock()
	m.logger.Errorw("reconnect attempts exhausted", "attempts", m.opts.Backoff.MaxAttempts)
}

// ensureHealthLoopLocked starts the periodic health check once. Caller must
// hold m.mu.
func (m *Manager) ensureHealthLoopLocked() {
	if m.healthLoopStarted {
		return
	}
	m.healthLoopStarted = true
	go m.healthLoop()
}

// healthLoop re-triggers a reconnect when the channel silently drops. A
// terminal error status is left alone: after backoff exhaustion only a
// manual Reconnect may restart the session.
func (m *Manager) healthLoop() {
	ticker := m.clock.NewTicker(m.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.Chan():
			m.mu.Lock()
			status := m.health.Status
			connected := m.state == stateConnected
			m.mu.Unlock()

			if connected || status.Terminal() || status == domain.StatusReconnecting || status == domain.StatusConnecting {
				continue
			}

			m.logger.Warnw("health check found session down", "status", status)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.Reconnect(ctx); err != nil {
				m.logger.Warnw("health check reconnect failed", "error", err)
			}
			cancel()
		}
	}
}

// setHealthLocked updates health status and queues the change for the
// notify loop. Caller must hold m.mu; listeners are invoked without it, one
// change at a time, in the order the transitions happened.
func (m *Manager) setHealthLocked(status domain.ConnectionStatus) {
	if m.health.Status == status {
		return
	}
	m.health.Status = status
	m.metrics.SetConnectionStatus(status)

	select {
	case m.healthCh <- status:
	case <-m.stopCh:
	}
}

// notifyLoop is the single dispatcher for status listeners. On shutdown it
// drains whatever is still queued so the final disconnected state is seen.
func (m *Manager) notifyLoop() {
	for {
		select {
		case status := <-m.healthCh:
			m.notify(status)
		case <-m.stopCh:
			for {
				select {
				case status := <-m.healthCh:
					m.notify(status)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) notify(status domain.ConnectionStatus) {
	m.mu.Lock()
	fns := make([]ports.HealthFunc, len(m.healthFns))
	copy(fns, m.healthFns)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}
