// Package metrics exposes Prometheus collectors for enforcement, usage
// recording, and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/costfence/costfence/internal/models"
)

// Metrics contains the Prometheus collectors for the service.
type Metrics struct {
	// Enforcement checks
	enforcementChecks  *prometheus.CounterVec
	enforcementActions *prometheus.CounterVec

	// Usage recording
	recordedRequests *prometheus.CounterVec
	recordedCost     *prometheus.CounterVec

	// Alerts
	alertsRaised *prometheus.CounterVec

	// Check latency
	checkDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with registered Prometheus collectors.
func New() *Metrics {
	return &Metrics{
		enforcementChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costfence_enforcement_checks_total",
				Help: "Total number of enforcement checks performed",
			},
			[]string{"result", "budget_status"},
		),

		enforcementActions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costfence_enforcement_actions_total",
				Help: "Total number of enforcement actions triggered",
			},
			[]string{"action"},
		),

		recordedRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costfence_recorded_requests_total",
				Help: "Total number of cost entries recorded",
			},
			[]string{"provider", "model"},
		),

		recordedCost: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costfence_recorded_cost_microdollars_total",
				Help: "Total recorded cost in micro-dollars",
			},
			[]string{"provider", "model"},
		),

		alertsRaised: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costfence_alerts_raised_total",
				Help: "Total number of cost alerts raised",
			},
			[]string{"level"},
		),

		checkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "costfence_check_duration_seconds",
				Help:    "Duration of enforcement checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
			[]string{"operation"},
		),
	}
}

// RecordEnforcementCheck records one enforcement decision.
func (m *Metrics) RecordEnforcementCheck(allowed bool, budgetStatus string) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.enforcementChecks.WithLabelValues(result, budgetStatus).Inc()
}

// RecordEnforcementAction records one triggered threshold action.
func (m *Metrics) RecordEnforcementAction(action models.BudgetAction) {
	if m == nil {
		return
	}
	m.enforcementActions.WithLabelValues(string(action)).Inc()
}

// RecordUsage records one persisted cost entry.
func (m *Metrics) RecordUsage(provider, model string, costMicros int64) {
	if m == nil {
		return
	}
	m.recordedRequests.WithLabelValues(provider, model).Inc()
	m.recordedCost.WithLabelValues(provider, model).Add(float64(costMicros))
}

// RecordAlert records one raised alert.
func (m *Metrics) RecordAlert(level models.AlertLevel) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(string(level)).Inc()
}

// RecordCheckDuration records the duration of one operation in seconds.
func (m *Metrics) RecordCheckDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.checkDuration.WithLabelValues(operation).Observe(seconds)
}
