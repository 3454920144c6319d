package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/pkg/circuitbreaker"
	"watchsync/pkg/retry"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetry() retry.Config {
	return retry.Config{
		Enabled:      true,
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		NonRetryable: []error{domain.ErrRoomNotFound, domain.ErrTokenExpired},
	}
}

func newTestClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
		Token:   token,
		Retry:   fastRetry(),
		Breaker: circuitbreaker.DefaultConfig(),
	}, zap.NewNop().Sugar())
}

func TestGetRoom(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		require.Equal(t, "/api/v1/rooms/room-1", r.URL.Path)
		json.NewEncoder(w).Encode(domain.Room{
			ID:         "room-1",
			Name:       "movie night",
			Owner:      "u1",
			MaxMembers: 10,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "opaque-token")
	room, err := client.GetRoom(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-1"), room.ID)
	assert.Equal(t, "movie night", room.Name)
	assert.Equal(t, "Bearer opaque-token", gotAuth.Load())
}

func TestGetRoomNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")
}

func TestGetRoomRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(domain.Room{ID: "room-1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	room, err := client.GetRoom(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-1"), room.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListParticipants(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/rooms/room-1/participants", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"participants": []*domain.Participant{
				{UserID: "u1", Username: "alice"},
				{UserID: "u2", Username: "bob"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	members, err := client.ListParticipants(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
}

func TestExpiredTokenShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	expired := signedToken(t, time.Now().Add(-time.Hour))
	client := newTestClient(t, server.URL, expired)

	_, err := client.GetRoom(context.Background(), "room-1")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Equal(t, int32(0), calls.Load(), "expired token never hits the wire")
}

func TestValidTokenPassesExpiryCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Room{ID: "room-1"})
	}))
	defer server.Close()

	valid := signedToken(t, time.Now().Add(time.Hour))
	client := newTestClient(t, server.URL, valid)

	_, err := client.GetRoom(context.Background(), "room-1")
	assert.NoError(t, err)
}

func TestUnauthorizedMapsToTokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "opaque")
	_, err := client.GetRoom(context.Background(), "room-1")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}
