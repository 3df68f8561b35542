// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widget_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChatsTotal tracks chats created.
	ChatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chats_total",
			Help: "Total chats created",
		},
	)

	// MessagesTotal tracks messages persisted, by sender type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"sender_type"},
	)

	// PresetSelectionsTotal tracks preset button presses.
	PresetSelectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preset_selections_total",
			Help: "Total preset nodes selected by customers",
		},
	)

	// EscalationsTotal tracks hand-offs to a human agent.
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total escalations to a human agent",
		},
	)

	// AutoRepliesTotal tracks bot auto-replies to free text.
	AutoRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auto_replies_total",
			Help: "Total automatic bot replies",
		},
	)

	// NavRestoresTotal tracks navigation-state restorations by outcome.
	NavRestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nav_restores_total",
			Help: "Navigation state restorations",
		},
		[]string{"outcome"}, // restored | fresh | healed
	)

	// RealtimePublishesTotal tracks feed publishes by payload.
	RealtimePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_publishes_total",
			Help: "Messages and events published to the realtime feed",
		},
		[]string{"payload"},
	)

	// RealtimeDeliveriesTotal tracks feed deliveries by payload.
	RealtimeDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Messages and events delivered to subscribers",
		},
		[]string{"payload"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// EnginesActive tracks live flow engines.
	EnginesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flow_engines_active",
			Help: "Number of initialized conversation flow engines",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
