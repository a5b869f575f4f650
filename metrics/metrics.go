// Package metrics provides Prometheus metrics for the session layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the gate, the guard and the auth service.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	DecisionAllowed      = "allowed"
	DecisionUnauthorized = "unauthorized"
	DecisionForbidden    = "forbidden"
	DecisionRedirected   = "redirected"
)

// Metrics holds the collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	gateOutcomesTotal   *prometheus.CounterVec
	gateDuration        prometheus.Histogram
	guardDecisionsTotal *prometheus.CounterVec
	authOperationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gateOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_gate_outcomes_total",
			Help: "Requests seen by the session refresh gate, by outcome",
		}, []string{"outcome"}),

		gateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "session_gate_duration_seconds",
			Help:    "Time spent validating or refreshing the session of a request",
			Buckets: prometheus.DefBuckets,
		}),

		guardDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_guard_decisions_total",
			Help: "Route guard decisions",
		}, []string{"decision"}),

		authOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_auth_operations_total",
			Help: "Auth operations by name and result",
		}, []string{"operation", "result"}),
	}
}

// GateOutcome records one gate run that took d.
func (m *Metrics) GateOutcome(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gateOutcomesTotal.WithLabelValues(outcome).Inc()
	m.gateDuration.Observe(d.Seconds())
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisionsTotal.WithLabelValues(decision).Inc()
}

// AuthOperation records op as a success when err is nil.
func (m *Metrics) AuthOperation(op string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.authOperationsTotal.WithLabelValues(op, result).Inc()
}
