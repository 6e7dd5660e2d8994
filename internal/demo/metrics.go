package demo

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verifyTotal        *prometheus.CounterVec
	verifyDuration     *prometheus.HistogramVec
	credentialReads    *prometheus.CounterVec
	credentialReadTime *prometheus.HistogramVec
	rotationsObserved  *prometheus.CounterVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// Metrics provides methods to record demonstration events.
type Metrics struct{}

// NewMetrics creates a new Metrics instance.
// Recording is a no-op until InitMetrics has been called.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics initializes all Prometheus metrics.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		verifyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotationdemo_verify_total",
				Help: "Total number of credential verification attempts",
			},
			[]string{"step", "status"},
		)

		verifyDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rotationdemo_verify_duration_seconds",
				Help:    "Duration of credential verification calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"step"},
		)

		credentialReads = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotationdemo_credential_reads_total",
				Help: "Total number of static credential reads from the secrets engine",
			},
			[]string{"role", "status"},
		)

		credentialReadTime = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rotationdemo_credential_read_duration_seconds",
				Help:    "Duration of static credential reads in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"role"},
		)

		rotationsObserved = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotationdemo_rotations_observed_total",
				Help: "Total number of rotations confirmed by a changed access key id",
			},
			[]string{"role"},
		)

		metricsRegistered = true
	})
}

// RecordVerify records one verification attempt.
func (m *Metrics) RecordVerify(step string, ok bool, durationSeconds float64) {
	if !metricsRegistered {
		return
	}

	if verifyTotal != nil {
		verifyTotal.WithLabelValues(step, statusLabel(ok)).Inc()
	}
	if verifyDuration != nil {
		verifyDuration.WithLabelValues(step).Observe(durationSeconds)
	}
}

// RecordCredentialRead records one read of a static role's credentials.
func (m *Metrics) RecordCredentialRead(role string, durationSeconds float64, ok bool) {
	if !metricsRegistered {
		return
	}

	if credentialReads != nil {
		credentialReads.WithLabelValues(role, statusLabel(ok)).Inc()
	}
	if credentialReadTime != nil {
		credentialReadTime.WithLabelValues(role).Observe(durationSeconds)
	}
}

// RecordRotationObserved records a confirmed key change for a role.
func (m *Metrics) RecordRotationObserved(role string) {
	if !metricsRegistered || rotationsObserved == nil {
		return
	}
	rotationsObserved.WithLabelValues(role).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
