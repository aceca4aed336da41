// Package metrics holds the router's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the router.
type Metrics struct {
	RouteDecisions     *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	CompletionDegraded *prometheus.CounterVec
	CompletionFailures *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	SessionsPurged     prometheus.Counter
	WebSocketClients   prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RouteDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_router_route_decisions_total",
			Help: "Routing decisions by outcome and service",
		}, []string{"decision", "service"}),

		CompletionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commerce_router_completion_duration_seconds",
			Help:    "Model completion latency per attempt",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service", "tools"}),

		CompletionDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_router_completion_degraded_total",
			Help: "Tool-enabled completions retried without tools",
		}, []string{"service"}),

		CompletionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_router_completion_failures_total",
			Help: "Turns where every completion attempt failed",
		}, []string{"service"}),

		// op: list, create, update, expire, profile, purge
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_router_store_errors_total",
			Help: "Session and profile store failures by operation",
		}, []string{"op"}),

		SessionsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_router_sessions_purged_total",
			Help: "Sessions deleted by the cleanup job",
		}),

		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "commerce_router_websocket_clients",
			Help: "Open routing WebSocket connections",
		}),
	}
}

// ObserveDecision counts one routing outcome.
func (m *Metrics) ObserveDecision(decision, service string) {
	if m == nil {
		return
	}
	m.RouteDecisions.WithLabelValues(decision, service).Inc()
}

// ObserveCompletion records one completion attempt.
func (m *Metrics) ObserveCompletion(service string, tools bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if tools {
		label = "true"
	}
	m.CompletionDuration.WithLabelValues(service, label).Observe(d.Seconds())
}

// Degraded counts a tool-enabled call that fell back to a plain call.
func (m *Metrics) Degraded(service string) {
	if m == nil {
		return
	}
	m.CompletionDegraded.WithLabelValues(service).Inc()
}

// CompletionFailed counts a turn that produced no model output.
func (m *Metrics) CompletionFailed(service string) {
	if m == nil {
		return
	}
	m.CompletionFailures.WithLabelValues(service).Inc()
}

// StoreError counts a failed store operation.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

// Purged adds to the purged-session counter.
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPurged.Add(float64(n))
}

// WebSocketOpened and WebSocketClosed track live routing sockets.
func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.WebSocketClients.Inc()
}

func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.WebSocketClients.Dec()
}
