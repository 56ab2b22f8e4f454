package flags

import "github.com/prometheus/client_golang/prometheus"

var (
	// CacheHitsTotal counts flag cache hits by kind.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "flag_cache_hits_total",
			Help:      "Total flag cache hits by kind.",
		},
		[]string{"kind"},
	)

	// CacheMissesTotal counts flag cache misses by kind.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "flag_cache_misses_total",
			Help:      "Total flag cache misses by kind.",
		},
		[]string{"kind"},
	)

	// GateDeniedTotal counts actions blocked by a kill switch, by category.
	GateDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "flag_gate_denied_total",
			Help:      "Total actions denied by a feature flag, by category.",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(CacheHitsTotal, CacheMissesTotal, GateDeniedTotal)
}
