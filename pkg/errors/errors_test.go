package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewNotConnectedError("UpdateVideoTime")
	assert.Equal(t, ErrCodeNotConnected, err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.Contains(t, err.Error(), "NOT_CONNECTED")
}

func TestTransportErrorWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewTransportError(cause, "hub dial failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetAppErrorUnwrapsChain(t *testing.T) {
	inner := NewPlayerError(errors.New("widget gone"), "seek")
	wrapped := fmt.Errorf("while applying remote state: %w", inner)

	got := GetAppError(wrapped)
	assert.NotNil(t, got)
	assert.Equal(t, ErrCodePlayer, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestWithContext(t *testing.T) {
	err := NewTransportError(nil, "join failed").WithContext("room_id", "r-42")
	assert.Equal(t, "r-42", err.Context["room_id"])
}
