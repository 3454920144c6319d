package monitoring

import (
	"watchsync/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var statuses = []domain.ConnectionStatus{
	domain.StatusConnecting,
	domain.StatusConnected,
	domain.StatusReconnecting,
	domain.StatusDisconnected,
	domain.StatusError,
}

// Collector exports playback-sync metrics.
type Collector struct {
	outboundPushes    *prometheus.CounterVec
	droppedInbound    *prometheus.CounterVec
	correctiveSeeks   prometheus.Counter
	reconnectAttempts prometheus.Counter
	connectionStatus  *prometheus.GaugeVec
	positionLag       prometheus.Gauge
}

// NewCollector registers the sync metrics with reg. Tests pass their own
// registry to avoid global registration conflicts.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		outboundPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_outbound_pushes_total",
			Help: "Outbound state pushes by kind (time, pause)",
		}, []string{"kind"}),

		droppedInbound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_dropped_inbound_frames_total",
			Help: "Inbound state frames dropped by reason (rate_limited, suppressed)",
		}, []string{"reason"}),

		correctiveSeeks: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_corrective_seeks_total",
			Help: "Corrective seeks issued after position divergence",
		}),

		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_reconnect_attempts_total",
			Help: "Hub reconnect attempts",
		}),

		connectionStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watchsync_connection_status",
			Help: "Current hub connection status (1 for the active status)",
		}, []string{"status"}),

		positionLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_position_lag_seconds",
			Help: "Absolute gap between local and last server-asserted position",
		}),
	}
}

func (c *Collector) RecordOutbound(kind string) {
	if c == nil {
		return
	}
	c.outboundPushes.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDroppedInbound(reason string) {
	if c == nil {
		return
	}
	c.droppedInbound.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordCorrectiveSeek() {
	if c == nil {
		return
	}
	c.correctiveSeeks.Inc()
}

func (c *Collector) RecordReconnectAttempt() {
	if c == nil {
		return
	}
	c.reconnectAttempts.Inc()
}

func (c *Collector) SetConnectionStatus(status domain.ConnectionStatus) {
	if c == nil {
		return
	}
	for _, s := range statuses {
		value := 0.0
		if s == status {
			value = 1.0
		}
		c.connectionStatus.WithLabelValues(string(s)).Set(value)
	}
}

func (c *Collector) SetPositionLag(seconds float64) {
	if c == nil {
		return
	}
	if seconds < 0 {
		seconds = -seconds
	}
	c.positionLag.Set(seconds)
}
