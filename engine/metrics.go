package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the cache manager's stats and the scheduler's
// step-level outcomes as Prometheus collectors, registered via promauto.
// It is purely observational: nothing in Scheduler or KVCacheManager
// reads these back, and callers decide when to refresh and increment
// them (typically once per Step).
type Metrics struct {
	BlocksFree      prometheus.Gauge
	BlocksAllocated prometheus.Gauge
	BytesUsed       prometheus.Gauge
	Utilization     prometheus.Gauge

	RequestsAdmitted  prometheus.Counter
	RequestsPreempted prometheus.Counter
	RequestsFinished  prometheus.Counter
	RequestsAborted   prometheus.Counter
}

// NewMetrics registers and returns a Metrics instance. Pass
// prometheus.DefaultRegisterer for the usual case, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksFree: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "izwi", Subsystem: "kvcache", Name: "blocks_free",
			Help: "Number of cache blocks currently free.",
		}),
		BlocksAllocated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "izwi", Subsystem: "kvcache", Name: "blocks_allocated",
			Help: "Number of cache blocks currently allocated.",
		}),
		BytesUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "izwi", Subsystem: "kvcache", Name: "bytes_used",
			Help: "Bytes of cache memory currently in use.",
		}),
		Utilization: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "izwi", Subsystem: "kvcache", Name: "utilization",
			Help: "Fraction of cache memory currently in use (used/capacity).",
		}),
		RequestsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "izwi", Subsystem: "scheduler", Name: "requests_admitted_total",
			Help: "Requests moved from waiting to running via prefill admission.",
		}),
		RequestsPreempted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "izwi", Subsystem: "scheduler", Name: "requests_preempted_total",
			Help: "Requests evicted from running state to make room for another admission.",
		}),
		RequestsFinished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "izwi", Subsystem: "scheduler", Name: "requests_finished_total",
			Help: "Requests that completed normally.",
		}),
		RequestsAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "izwi", Subsystem: "scheduler", Name: "requests_aborted_total",
			Help: "Requests aborted by the driver before completion.",
		}),
	}
}

// Observe refreshes the gauge collectors from a cache stats snapshot.
func (m *Metrics) Observe(stats KVCacheStats) {
	m.BlocksFree.Set(float64(stats.FreeBlocks))
	m.BlocksAllocated.Set(float64(stats.AllocatedBlocks))
	m.BytesUsed.Set(float64(stats.BytesUsed))
	m.Utilization.Set(stats.Utilization)
}
