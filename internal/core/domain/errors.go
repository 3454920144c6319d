package domain

import "errors"

var (
	ErrNotConnected  = errors.New("hub not connected")
	ErrSessionClosed = errors.New("session closed")
	ErrConnectFailed = errors.New("connection failed")
	ErrRoomNotFound  = errors.New("room not found")
	ErrTokenExpired  = errors.New("auth token expired")
)
