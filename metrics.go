// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stages of a resolution, used as metric labels.
const (
	StageDiscovery = "discovery"
	StageEncrypt   = "encrypt"
	StageTransport = "transport"
	StageDecrypt   = "decrypt"
)

// Metrics collects per-stage counters and durations.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Queries counts resolutions by mode (direct|proxied) and
	// outcome (success|error).
	Queries *prometheus.CounterVec

	// Errors counts failures by stage.
	Errors *prometheus.CounterVec

	// Duration observes the time spent in each stage.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates a new [*Metrics] registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odoh_client_queries_total",
			Help: "ODoH resolutions by mode and outcome (Counter).",
		}, []string{"mode", "outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odoh_client_errors_total",
			Help: "ODoH failures by pipeline stage (Counter).",
		}, []string{"stage"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odoh_client_stage_duration_seconds",
			Help:    "Time spent in each ODoH pipeline stage (Histogram).",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Queries, m.Errors, m.Duration)
	return m
}

// observe records the outcome of a stage that started at t0.
func (m *Metrics) observe(stage string, t0 time.Time, err error) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(stage).Observe(time.Since(t0).Seconds())
	if err != nil {
		m.Errors.WithLabelValues(stage).Inc()
	}
}

// done records the outcome of a whole resolution.
func (m *Metrics) done(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Queries.WithLabelValues(mode, outcome).Inc()
}
