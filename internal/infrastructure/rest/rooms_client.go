package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/pkg/circuitbreaker"
	"watchsync/pkg/config"
	"watchsync/pkg/logger"
	"watchsync/pkg/retry"
	"watchsync/pkg/tracing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Options carries the rooms-API client tunables.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Token   string
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// OptionsFromConfig maps the rooms_api section of the config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL: cfg.RoomsAPI.BaseURL,
		Timeout: cfg.RoomsAPI.Timeout,
		Token:   cfg.RoomsAPI.Token,
		Retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			NonRetryable: []error{domain.ErrRoomNotFound, domain.ErrTokenExpired},
		},
		Breaker: circuitbreaker.DefaultConfig(),
	}
}

// Client talks to the rooms REST API. Transient failures are retried with
// backoff; a misbehaving backend trips the circuit breaker so the agent does
// not pile requests onto it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewClient builds a rooms-API client.
func NewClient(opts Options, logger *zap.SugaredLogger) *Client {
	c := &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    &http.Client{Timeout: opts.Timeout},
		retry:   opts.Retry,
		breaker: circuitbreaker.New(opts.Breaker),
		logger:  logger,
	}
	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("rooms api circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return c
}

// GetRoom fetches one room's metadata.
func (c *Client) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	path := fmt.Sprintf("/api/v1/rooms/%s", roomID)
	return fetch[*domain.Room](c, ctx, path)
}

// ListParticipants fetches the current member list of a room.
func (c *Client) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	path := fmt.Sprintf("/api/v1/rooms/%s/participants", roomID)
	resp, err := fetch[participantsResponse](c, ctx, path)
	if err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

type participantsResponse struct {
	Participants []*domain.Participant `json:"participants"`
}

// fetch runs one GET through the breaker, with retries inside so a request
// that eventually succeeds counts as one breaker success.
func fetch[T any](c *Client, ctx context.Context, path string) (T, error) {
	var zero T

	if c.token != "" && tokenExpired(c.token, time.Now()) {
		return zero, fmt.Errorf("%w: refresh the api token", domain.ErrTokenExpired)
	}

	ctx, span := tracing.TraceRESTRequest(ctx, http.MethodGet, path)
	defer span.End()

	result, err := circuitbreaker.Do(ctx, c.breaker, func() (T, error) {
		return retry.RetryWithResult(ctx, c.retry, func() (T, error) {
			return doGet[T](c, ctx, path)
		})
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return zero, err
	}
	return result, nil
}

func doGet[T any](c *Client, ctx context.Context, path string) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("rooms api request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.FromContext(ctx, c.logger).Debugw("rooms api request",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return zero, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, path)
	case resp.StatusCode == http.StatusUnauthorized:
		return zero, fmt.Errorf("%w: rooms api rejected the token", domain.ErrTokenExpired)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("rooms api returned %d: %s", resp.StatusCode, string(body))
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return zero, fmt.Errorf("decode rooms api response: %w", err)
	}
	return result, nil
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; verification is the server's job. Opaque tokens pass through.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
