// ABOUTME: Prometheus metrics for the console API.
// ABOUTME: Counts sends, turn events by type, and live SSE streams.

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the console's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SendsStarted  prometheus.Counter
	EventsHandled *prometheus.CounterVec
	ActiveStreams prometheus.Gauge
}

// NewMetrics creates and registers the console metric collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SendsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpconnect_sends_started_total",
			Help: "Number of streaming turns started via POST /api/send.",
		}),
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpconnect_turn_events_total",
			Help: "Turn events applied to the streaming session, by event type.",
		}, []string{"type"}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpconnect_active_streams",
			Help: "SSE send streams currently open.",
		}),
	}

	registry.MustRegister(m.SendsStarted, m.EventsHandled, m.ActiveStreams)
	return m
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
