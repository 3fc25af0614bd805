// Package metrics implements the service recorders on prometheus.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
)

const resultOK = "ok"

// Metrics satisfies state.Recorder, catalog.Recorder and
// coordinator.Recorder, and its Anomaly method is a settings.AnomalyHandler.
type Metrics struct {
	writes        *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	anomalies     *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	attempts      *prometheus.CounterVec
}

// New registers the collectors on reg. A second call against the same
// registry panics, like any duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settings_writes_total",
			Help: "Settings writes and resets by scope and result code",
		}, []string{"scope", "result"}),
		writeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settings_write_duration_seconds",
			Help:    "Latency of settings writes including the refreshed table",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"scope"}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settings_resolution_anomalies_total",
			Help: "Stored values discarded during resolution because they failed validation",
		}, []string{"key"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "versioned_mutations_total",
			Help: "Catalog mutations by entity, operation and result code",
		}, []string{"entity", "op", "result"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_attempts_total",
			Help: "Write coordinator submissions by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveSettingWrite(scope settings.ScopeType, code guard.Code, elapsed time.Duration) {
	label := strings.ToLower(string(scope))
	m.writes.WithLabelValues(label, result(code)).Inc()
	m.writeDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMutation(entity, op string, code guard.Code) {
	m.mutations.WithLabelValues(entity, op, result(code)).Inc()
}

func (m *Metrics) ObserveAttempt(attempt int, code guard.Code) {
	outcome := result(code)
	if attempt > 1 {
		outcome = "retry_" + outcome
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Anomaly counts values discarded by resolution.
func (m *Metrics) Anomaly(key string, _ settings.ScopeType, _ error) {
	m.anomalies.WithLabelValues(key).Inc()
}

func result(code guard.Code) string {
	if code == "" {
		return resultOK
	}
	return strings.ToLower(string(code))
}
