// Package metrics exposes Prometheus collectors and health endpoints for
// the control plane.
package metrics

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics bundles the control-plane collectors. A nil *Metrics is valid and
// turns every observation into a no-op, which keeps tests free of wiring.
type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	activePlugins     prometheus.Gauge
	handshakeDuration prometheus.Histogram
}

// New creates and registers the control-plane collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugd_control_requests_total",
			Help: "Control requests by subcommand and outcome.",
		}, []string{"subcommand", "outcome"}),
		activePlugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plugd_plugins_active",
			Help: "Number of plugins in active state.",
		}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plugd_handshake_duration_seconds",
			Help:    "Duration of successful plugin manifest handshakes.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(m.requests, m.activePlugins, m.handshakeDuration)

	return m
}

// ObserveRequest counts one resolved control request.
func (m *Metrics) ObserveRequest(subcommand, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(subcommand, outcome).Inc()
}

// SetActivePlugins records the current number of active plugins.
func (m *Metrics) SetActivePlugins(n int) {
	if m == nil {
		return
	}
	m.activePlugins.Set(float64(n))
}

// ObserveHandshake records the duration of a successful handshake.
func (m *Metrics) ObserveHandshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for the bundled registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics plus liveness and readiness endpoints on addr.
// It blocks until the listener fails.
func Serve(addr string, m *Metrics) error {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	log.Info().Str("event", "metrics_server_started").Str("address", addr).Msg("metrics server listening")

	return http.ListenAndServe(addr, mux)
}
