package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("login", ResultOK)
	m.Observe("login", ResultOK)
	m.Observe("login", "unauthorized")
	m.CacheDegraded("blacklist")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("login", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("login", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degraded.WithLabelValues("blacklist")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Observe("login", ResultOK)
		m.CacheDegraded("blacklist")
	})
}
