package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains authorization metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// decisionTotal counts authorization decisions.
	decisionTotal *prometheus.CounterVec

	// evaluationDuration measures how long a decision took.
	evaluationDuration *prometheus.HistogramVec

	// auditDropped counts audit events dropped because the buffer was full.
	auditDropped prometheus.Counter

	// auditWrites counts audit store writes by result.
	auditWrites *prometheus.CounterVec
}

// NewMetrics creates authorization metrics and registers them with registerer.
// A nil registerer uses prometheus.DefaultRegisterer.
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "inventory"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions",
		},
		[]string{"outcome", "reason"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "evaluation_duration_seconds",
			Help:      "Authorization evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"outcome"},
	)

	m.auditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "audit_dropped_total",
			Help:      "Audit events dropped because the buffer was full",
		},
	)

	m.auditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "audit_writes_total",
			Help:      "Audit store writes by result",
		},
		[]string{"result"},
	)

	for _, c := range []prometheus.Collector{m.decisionTotal, m.evaluationDuration, m.auditDropped, m.auditWrites} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register authz metrics: %w", err)
		}
	}
	return m, nil
}

// RecordDecision records one authorization decision. outcome is "allow" or
// "deny"; reason is the decision state (public, internal, token, or a
// failure category).
func (m *Metrics) RecordDecision(outcome, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisionTotal.WithLabelValues(outcome, reason).Inc()
	m.evaluationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAuditDropped counts an audit event lost to back-pressure.
func (m *Metrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// RecordAuditWrite counts an audit store write.
func (m *Metrics) RecordAuditWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.auditWrites.WithLabelValues(result).Inc()
}
