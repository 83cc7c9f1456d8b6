package health

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mmynk/equb/internal/metrics"
)

func TestStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatus(metrics.New(reg), nil)
	assert.False(t, s.IsDegraded())

	s.MarkDegraded("2 integrity violations")
	assert.True(t, s.IsDegraded())
	assert.Equal(t, "2 integrity violations", s.Reason())

	n, err := testutil.GatherAndCount(reg, "equb_degraded")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	s.Restore()
	assert.False(t, s.IsDegraded())
	assert.Empty(t, s.Reason())
}
