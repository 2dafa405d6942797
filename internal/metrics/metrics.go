// Package metrics holds the Prometheus collectors for the MCP runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a session. A nil *Metrics is
// valid and records nothing, so instrumentation stays optional.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	PendingRequests  prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	TimeoutsTotal    prometheus.Counter
	CancelledTotal   prometheus.Counter
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		MessagesReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwire",
				Name:      "messages_received_total",
				Help:      "Inbound JSON-RPC messages by kind",
			},
			[]string{"kind"}, // kind=request/response/notification/invalid
		),
		MessagesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwire",
				Name:      "messages_sent_total",
				Help:      "Outbound JSON-RPC messages by kind",
			},
			[]string{"kind"},
		),
		PendingRequests: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpwire",
				Name:      "pending_requests",
				Help:      "Outbound requests awaiting a response",
			},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpwire",
				Name:      "request_duration_seconds",
				Help:      "Outbound request round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		TimeoutsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpwire",
				Name:      "request_timeouts_total",
				Help:      "Outbound requests retired by deadline expiry",
			},
		),
		CancelledTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpwire",
				Name:      "requests_cancelled_total",
				Help:      "Outbound requests cancelled locally",
			},
		),
	}
}

// ObserveReceived records one inbound message. Nil-safe.
func (m *Metrics) ObserveReceived(kind string) {
	if m != nil {
		m.MessagesReceived.WithLabelValues(kind).Inc()
	}
}

// ObserveSent records one outbound message. Nil-safe.
func (m *Metrics) ObserveSent(kind string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(kind).Inc()
	}
}

// SetPending records the pending-map depth. Nil-safe.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingRequests.Set(float64(n))
	}
}

// ObserveDuration records one completed round trip. Nil-safe.
func (m *Metrics) ObserveDuration(method string, seconds float64) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method).Observe(seconds)
	}
}

// ObserveTimeout records one deadline expiry. Nil-safe.
func (m *Metrics) ObserveTimeout() {
	if m != nil {
		m.TimeoutsTotal.Inc()
	}
}

// ObserveCancelled records one local cancellation. Nil-safe.
func (m *Metrics) ObserveCancelled() {
	if m != nil {
		m.CancelledTotal.Inc()
	}
}
