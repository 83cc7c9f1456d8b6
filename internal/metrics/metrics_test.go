package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.GroupTransition("ACTIVE")
	m.GroupTransition("ACTIVE")
	m.Contribution("confirmed")
	m.PayoutExecuted(decimal.RequireFromString("2000.50"))
	m.IntegrityChecked(3)
	m.SetDegraded(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.groupTransitions.WithLabelValues("ACTIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contributions.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payouts))
	assert.Equal(t, 2000.5, testutil.ToFloat64(m.payoutVolume))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.integrityViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degraded))

	m.SetDegraded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.degraded))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GroupTransition("ACTIVE")
		m.Contribution("submitted")
		m.PayoutExecuted(decimal.NewFromInt(1))
		m.ReconciliationFailed()
		m.IntegrityChecked(0)
		m.SetDegraded(true)
	})
}
