package http

import (
	"net/http"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/internal/core/services"
	"watchsync/pkg/utils"

	"github.com/gin-gonic/gin"
)

// SessionStatus is the slice of the session manager the status surface needs.
type SessionStatus interface {
	Health() domain.ConnectionHealth
}

// PlaybackStatus is the slice of the reconciler the status surface needs.
type PlaybackStatus interface {
	Phase() services.Phase
	Snapshot() domain.PlaybackState
}

// StatusHandler exposes the agent's local observability surface: connection
// health, the playback view, and room metadata from the rooms API.
type StatusHandler struct {
	session   SessionStatus
	playback  PlaybackStatus
	directory ports.RoomDirectory
	roomID    domain.RoomID
	startTime time.Time
}

func NewStatusHandler(
	session SessionStatus,
	playback PlaybackStatus,
	directory ports.RoomDirectory,
	roomID domain.RoomID,
) *StatusHandler {
	return &StatusHandler{
		session:   session,
		playback:  playback,
		directory: directory,
		roomID:    roomID,
		startTime: time.Now(),
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/playback", h.Playback)
	router.GET("/room", h.Room)
	router.GET("/room/participants", h.Participants)
}

func (h *StatusHandler) Health(c *gin.Context) {
	health := h.session.Health()
	c.JSON(http.StatusOK, gin.H{
		"status":             string(health.Status),
		"last_contact":       health.LastContact,
		"reconnect_attempts": health.ReconnectAttempts,
		"uptime":             utils.FormatDuration(time.Since(h.startTime)),
		"timestamp":          time.Now(),
	})
}

func (h *StatusHandler) Ready(c *gin.Context) {
	health := h.session.Health()
	if health.Status != domain.StatusConnected {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": string(health.Status),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *StatusHandler) Playback(c *gin.Context) {
	state := h.playback.Snapshot()
	resp := gin.H{
		"phase":     string(h.playback.Phase()),
		"video_id":  state.VideoID,
		"is_paused": state.Paused,
		"position":  state.Position,
		"display":   utils.FormatSeconds(state.Position),
	}
	if state.Metadata != nil {
		resp["title"] = state.Metadata.Title
		resp["duration_seconds"] = state.Metadata.DurationSeconds
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) Room(c *gin.Context) {
	room, err := h.directory.GetRoom(c.Request.Context(), h.roomID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *StatusHandler) Participants(c *gin.Context) {
	members, err := h.directory.ListParticipants(c.Request.Context(), h.roomID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"participants": members,
		"count":        len(members),
	})
}
