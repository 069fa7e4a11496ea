package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK           = "ok"
	outcomeBackendError = "backend_error"
	outcomeUnreachable  = "unreachable"
	outcomeMalformed    = "malformed"
)

// Metrics exports relay counters. A nil *Metrics records nothing.
type Metrics struct {
	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	stagedUploads  *prometheus.CounterVec
	stagedBytes    prometheus.Counter
}

// NewMetrics creates the relay collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neon_relay_backend_calls_total",
			Help: "Backend calls made by the relay, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "neon_relay_backend_latency_seconds",
			Help:    "Latency of backend calls made by the relay",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"endpoint"}),

		stagedUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neon_relay_staged_uploads_total",
			Help: "Uploads written to the staging directory",
		}, []string{"endpoint"}),

		stagedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neon_relay_staged_bytes_total",
			Help: "Bytes written to the staging directory",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.backendCalls, m.backendLatency, m.stagedUploads, m.stagedBytes)
	}
	return m
}

func (m *Metrics) observeBackend(endpoint string, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(endpoint, outcome).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) observeStaged(endpoint string, size int64) {
	if m == nil {
		return
	}
	m.stagedUploads.WithLabelValues(endpoint).Inc()
	m.stagedBytes.Add(float64(size))
}
