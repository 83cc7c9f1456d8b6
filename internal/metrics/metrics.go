// Package metrics exposes the ledger's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so callers that do not care
// about metrics (tests, the CLI) can leave it unset.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "equb"

// Metrics holds the ledger collectors.
type Metrics struct {
	groupTransitions       *prometheus.CounterVec
	contributions          *prometheus.CounterVec
	payouts                prometheus.Counter
	payoutVolume           prometheus.Counter
	reconciliationFailures prometheus.Counter
	integrityChecks        prometheus.Counter
	integrityViolations    prometheus.Gauge
	degraded               prometheus.Gauge
}

// New registers the ledger collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		groupTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_transitions_total",
			Help:      "Group status transitions by target status.",
		}, []string{"status"}),
		contributions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_total",
			Help:      "Contribution ledger events by outcome.",
		}, []string{"outcome"}),
		payouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_executed_total",
			Help:      "Payouts executed.",
		}),
		payoutVolume: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_volume_total",
			Help:      "Sum of executed payout amounts. Approximate; the ledger keeps exact decimals.",
		}),
		reconciliationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_failures_total",
			Help:      "Payout executions aborted by reconciliation.",
		}),
		integrityChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_checks_total",
			Help:      "Integrity checks run.",
		}),
		integrityViolations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_violations",
			Help:      "Violations found by the most recent integrity check.",
		}),
		degraded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degraded",
			Help:      "1 while financial writes are blocked.",
		}),
	}
}

// GroupTransition counts a group entering status.
func (m *Metrics) GroupTransition(status string) {
	if m == nil {
		return
	}
	m.groupTransitions.WithLabelValues(status).Inc()
}

// Contribution counts a contribution event ("submitted", "confirmed", "rejected").
func (m *Metrics) Contribution(outcome string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(outcome).Inc()
}

// PayoutExecuted counts a payout and adds its amount to the volume.
func (m *Metrics) PayoutExecuted(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payouts.Inc()
	m.payoutVolume.Add(amount.InexactFloat64())
}

// ReconciliationFailed counts an aborted payout.
func (m *Metrics) ReconciliationFailed() {
	if m == nil {
		return
	}
	m.reconciliationFailures.Inc()
}

// IntegrityChecked records the outcome of an integrity check.
func (m *Metrics) IntegrityChecked(violations int) {
	if m == nil {
		return
	}
	m.integrityChecks.Inc()
	m.integrityViolations.Set(float64(violations))
}

// SetDegraded mirrors the degraded flag.
func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}
