package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/api/config"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TenantRolledUp(true)
	m.TenantRolledUp(true)
	m.TenantRolledUp(false)
	m.CacheOutcome("crm:30d", CacheStale)
	m.CRMError("get_messages")
	m.EventsTracked(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RollupTenants.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollupTenants.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOutcomes.WithLabelValues("crm:30d", CacheStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CRMErrors.WithLabelValues("get_messages")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TrackedEvents))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TenantRolledUp(false)
		m.ObserveRollup(1)
		m.CacheOutcome("crm", CacheFresh)
		m.CRMRequest("list_leads")
		m.CRMError("list_leads")
		m.EventsTracked(1)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	dev, err := NewLogger(config.LoggingConfig{Level: "warn", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, dev)
}
