package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	lastConsistent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meterline",
		Subsystem: "reconciliation",
		Name:      "last_run_consistent",
		Help:      "Whether the last reconciliation run found wallets and ledger in agreement (1 or 0).",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meterline",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	runErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meterline",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation run errors.",
	})
)

func init() {
	prometheus.MustRegister(
		lastConsistent,
		runDuration,
		runErrors,
	)
}
