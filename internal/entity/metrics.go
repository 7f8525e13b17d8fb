package entity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports counters for the engine's hot paths. All Registry methods
// tolerate a nil *Metrics, so instrumentation is strictly opt-in.
type Metrics struct {
	saved     prometheus.Counter
	uids      prometheus.Counter
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// NewMetrics registers the engine's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		saved: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfell_entities_saved_total",
			Help: "Entities written to their backing store.",
		}),
		uids: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfell_uids_issued_total",
			Help: "Identifiers generated.",
		}),
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emberfell_key_cache_hits_total",
			Help: "Key-cache lookups that found a live entity.",
		}, []string{"type", "key"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emberfell_key_cache_misses_total",
			Help: "Key-cache lookups that fell through to the store.",
		}, []string{"type", "key"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emberfell_key_cache_evictions_total",
			Help: "Entries dropped from a bounded key cache.",
		}, []string{"type", "key"}),
	}
}

func (m *Metrics) entitySaved() {
	if m != nil {
		m.saved.Inc()
	}
}

func (m *Metrics) uidIssued() {
	if m != nil {
		m.uids.Inc()
	}
}

func (m *Metrics) cacheHit(typeName, keyName string) {
	if m != nil {
		m.hits.WithLabelValues(typeName, keyName).Inc()
	}
}

func (m *Metrics) cacheMiss(typeName, keyName string) {
	if m != nil {
		m.misses.WithLabelValues(typeName, keyName).Inc()
	}
}

func (m *Metrics) evicted(typeName, keyName string) {
	if m != nil {
		m.evictions.WithLabelValues(typeName, keyName).Inc()
	}
}
