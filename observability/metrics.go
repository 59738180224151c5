package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cache outcome label values.
const (
	CacheFresh    = "fresh"
	CacheComputed = "computed"
	CacheStale    = "stale"
	CacheEmpty    = "empty"
)

// Metrics holds the collectors for rollups, the snapshot cache and CRM calls.
// A nil *Metrics is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	RollupTenants  *prometheus.CounterVec
	RollupDuration prometheus.Histogram
	CacheOutcomes  *prometheus.CounterVec
	CRMRequests    *prometheus.CounterVec
	CRMErrors      *prometheus.CounterVec
	TrackedEvents  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RollupTenants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "rollup",
			Name:      "tenants_total",
			Help:      "Tenant rollups by result.",
		}, []string{"result"}),
		RollupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clientpulse",
			Subsystem: "rollup",
			Name:      "duration_seconds",
			Help:      "Duration of a full daily rollup run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		CacheOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "snapshot_cache",
			Name:      "lookups_total",
			Help:      "Snapshot cache lookups by outcome.",
		}, []string{"source", "outcome"}),
		CRMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "crm",
			Name:      "requests_total",
			Help:      "Requests sent to the CRM API.",
		}, []string{"operation"}),
		CRMErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "crm",
			Name:      "errors_total",
			Help:      "Failed CRM operations.",
		}, []string{"operation"}),
		TrackedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Raw visit events accepted by the tracking endpoint.",
		}),
	}
	reg.MustRegister(m.RollupTenants, m.RollupDuration, m.CacheOutcomes, m.CRMRequests, m.CRMErrors, m.TrackedEvents)
	return m
}

func (m *Metrics) TenantRolledUp(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RollupTenants.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRollup(seconds float64) {
	if m == nil {
		return
	}
	m.RollupDuration.Observe(seconds)
}

func (m *Metrics) CacheOutcome(source, outcome string) {
	if m == nil {
		return
	}
	m.CacheOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) CRMRequest(operation string) {
	if m == nil {
		return
	}
	m.CRMRequests.WithLabelValues(operation).Inc()
}

func (m *Metrics) CRMError(operation string) {
	if m == nil {
		return
	}
	m.CRMErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) EventsTracked(n int) {
	if m == nil {
		return
	}
	m.TrackedEvents.Add(float64(n))
}
