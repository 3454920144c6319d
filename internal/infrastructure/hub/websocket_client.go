package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/pkg/config"
	apperrors "watchsync/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options carries the websocket tunables for the hub channel.
type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
}

// OptionsFromConfig maps the hub section of the config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:              cfg.Hub.URL,
		HandshakeTimeout: cfg.Hub.HandshakeTimeout,
		PingInterval:     cfg.Hub.PingInterval,
		PongTimeout:      cfg.Hub.PongTimeout,
		WriteTimeout:     cfg.Hub.WriteTimeout,
	}
}

// frame is the wire envelope: a named message with a JSON payload.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is the websocket implementation of ports.HubTransport. One Client
// carries at most one live connection; Connect after Stop dials fresh, which
// is what the reconnect loop leans on.
type Client struct {
	opts    Options
	dialer  *websocket.Dialer
	logger  *zap.SugaredLogger
	handler ports.EventHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	stopCh chan struct{}

	writeMu sync.Mutex
}

// NewClient builds a hub client. Bind must be called before Connect.
func NewClient(opts Options, logger *zap.SugaredLogger) *Client {
	return &Client{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger,
	}
}

// Bind installs the event handler.
func (c *Client) Bind(handler ports.EventHandler) {
	c.handler = handler
}

// Connect dials the hub and starts the read and ping loops. An existing
// connection is torn down first.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return apperrors.NewTransportError(err, fmt.Sprintf("dial %s", c.opts.URL))
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	stop := make(chan struct{})

	c.mu.Lock()
	old, oldStop := c.conn, c.stopCh
	c.conn, c.stopCh = conn, stop
	c.mu.Unlock()
	if old != nil {
		close(oldStop)
		old.Close()
	}

	go c.readLoop(conn, stop)
	go c.pingLoop(conn, stop)

	c.logger.Infow("hub connected", "url", c.opts.URL)
	return nil
}

// Invoke sends one named procedure call. The write itself is the
// acknowledgement; the hub answers through state frames.
func (c *Client) Invoke(ctx context.Context, method string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(frame{Type: method, Payload: raw}); err != nil {
		return apperrors.NewTransportError(err, fmt.Sprintf("write %s", method))
	}
	return nil
}

// Stop closes the connection. A stopped connection never reports itself as
// lost; only unexpected drops do.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn, stop := c.conn, c.stopCh
	c.conn, c.stopCh = nil, nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(stop)

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-stop:
				return
			default:
			}

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("hub read failed", "error", err)
			}
			c.detach(conn)
			c.emit(ports.HubEvent{
				Kind:   ports.EventConnectionChanged,
				Status: domain.StatusDisconnected,
			})
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		c.dispatch(f)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugw("hub ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Type {
	case ports.FrameInitialState, ports.FrameStateUpdated:
		var state domain.PlaybackState
		if err := json.Unmarshal(f.Payload, &state); err != nil {
			c.logger.Warnw("bad state frame", "type", f.Type, "error", err)
			return
		}
		kind := ports.EventStateUpdate
		if f.Type == ports.FrameInitialState {
			kind = ports.EventInitialState
		}
		c.emit(ports.HubEvent{Kind: kind, State: &state})
	default:
		c.logger.Debugw("unknown hub frame", "type", f.Type)
	}
}

func (c *Client) emit(ev ports.HubEvent) {
	if c.handler != nil {
		c.handler(ev)
	}
}

// detach clears the connection slot if it still holds conn, so a racing
// Connect is not clobbered.
func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.stopCh != nil {
			close(c.stopCh) // stops the ping loop
			c.stopCh = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}
