package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// hubStub is a one-connection-at-a-time fake hub. Received frames land in
// frames; anything written to push goes out to the current connection.
type hubStub struct {
	server *httptest.Server
	frames chan frame
	push   chan frame
	closes chan struct{}

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newHubStub(t *testing.T) *hubStub {
	t.Helper()
	stub := &hubStub{
		frames: make(chan frame, 16),
		push:   make(chan frame, 16),
		closes: make(chan struct{}, 4),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		stub.mu.Lock()
		stub.conns = append(stub.conns, conn)
		stub.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					stub.closes <- struct{}{}
					return
				}
				stub.frames <- f
			}
		}()

		for {
			select {
			case <-done:
				return
			case f := <-stub.push:
				if err := conn.WriteJSON(f); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

// dropConnections severs every live websocket from the server side.
// httptest's CloseClientConnections skips hijacked connections, so the
// stub has to close them itself.
func (s *hubStub) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *hubStub) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *hubStub) pushState(t *testing.T, frameType string, state domain.PlaybackState) {
	t.Helper()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	s.push <- frame{Type: frameType, Payload: raw}
}

func testHubOptions(url string) Options {
	return Options{
		URL:              url,
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     50 * time.Millisecond,
		PongTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

type eventSink struct {
	mu     sync.Mutex
	events []ports.HubEvent
}

func (s *eventSink) handle(ev ports.HubEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) all() []ports.HubEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.HubEvent(nil), s.events...)
}

func TestInvokeWritesNamedFrame(t *testing.T) {
	stub := newHubStub(t)
	client := NewClient(testHubOptions(stub.url()), zap.NewNop().Sugar())
	client.Bind(func(ports.HubEvent) {})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Stop(context.Background())

	payload := map[string]interface{}{"room_id": "room-1", "seconds": 42.5}
	require.NoError(t, client.Invoke(context.Background(), ports.ProcUpdateTime, payload))

	select {
	case f := <-stub.frames:
		assert.Equal(t, ports.ProcUpdateTime, f.Type)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(f.Payload, &got))
		assert.Equal(t, "room-1", got["room_id"])
		assert.Equal(t, 42.5, got["seconds"])
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the hub")
	}
}

func TestInvokeWithoutConnect(t *testing.T) {
	client := NewClient(testHubOptions("ws://127.0.0.1:0"), zap.NewNop().Sugar())
	err := client.Invoke(context.Background(), ports.ProcUpdateTime, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnectFailsAgainstDeadEndpoint(t *testing.T) {
	opts := testHubOptions("ws://127.0.0.1:1")
	opts.HandshakeTimeout = 200 * time.Millisecond
	client := NewClient(opts, zap.NewNop().Sugar())
	assert.Error(t, client.Connect(context.Background()))
}

func TestStateFramesDispatched(t *testing.T) {
	stub := newHubStub(t)
	sink := &eventSink{}
	client := NewClient(testHubOptions(stub.url()), zap.NewNop().Sugar())
	client.Bind(sink.handle)

	require.NoError(t, client.Connect(context.Background()))
	defer client.Stop(context.Background())

	initial := domain.PlaybackState{
		VideoID:  "v1",
		Paused:   true,
		Position: 30,
		Metadata: &domain.VideoMetadata{Title: "movie", DurationSeconds: 3600},
	}
	stub.pushState(t, ports.FrameInitialState, initial)
	stub.pushState(t, ports.FrameStateUpdated, domain.PlaybackState{VideoID: "v1", Position: 35})
	stub.push <- frame{Type: "SomethingUnknown"}

	assert.Eventually(t, func() bool { return len(sink.all()) >= 2 },
		2*time.Second, 5*time.Millisecond)

	events := sink.all()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, ports.EventInitialState, events[0].Kind)
	require.NotNil(t, events[0].State)
	assert.Equal(t, initial, *events[0].State)
	assert.Equal(t, ports.EventStateUpdate, events[1].Kind)
	assert.Equal(t, 35.0, events[1].State.Position)
}

func TestServerDropEmitsConnectionChanged(t *testing.T) {
	stub := newHubStub(t)
	sink := &eventSink{}
	client := NewClient(testHubOptions(stub.url()), zap.NewNop().Sugar())
	client.Bind(sink.handle)

	require.NoError(t, client.Connect(context.Background()))
	stub.dropConnections()

	assert.Eventually(t, func() bool {
		for _, ev := range sink.all() {
			if ev.Kind == ports.EventConnectionChanged && ev.Status == domain.StatusDisconnected {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopIsSilent(t *testing.T) {
	stub := newHubStub(t)
	sink := &eventSink{}
	client := NewClient(testHubOptions(stub.url()), zap.NewNop().Sugar())
	client.Bind(sink.handle)

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Stop(context.Background()))

	time.Sleep(100 * time.Millisecond)
	for _, ev := range sink.all() {
		assert.NotEqual(t, ports.EventConnectionChanged, ev.Kind,
			"deliberate stop must not look like a drop")
	}

	// Stop twice is fine, and a fresh Connect works after it.
	require.NoError(t, client.Stop(context.Background()))
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Stop(context.Background()))
}

func TestPingKeepsConnectionAlive(t *testing.T) {
	stub := newHubStub(t)
	client := NewClient(testHubOptions(stub.url()), zap.NewNop().Sugar())
	client.Bind(func(ports.HubEvent) {})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Stop(context.Background())

	// Several ping intervals pass without the hub seeing a close.
	time.Sleep(250 * time.Millisecond)
	select {
	case <-stub.closes:
		t.Fatal("connection dropped while idle")
	default:
	}
	require.NoError(t, client.Invoke(context.Background(), ports.ProcUpdatePause,
		map[string]interface{}{"room_id": "room-1", "is_paused": true}))
}
