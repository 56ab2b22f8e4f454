package wallet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpsTotal counts wallet operations by type.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "wallet_operations_total",
			Help:      "Total wallet operations by type.",
		},
		[]string{"type"},
	)

	// OpDuration observes operation latency by type.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meterline",
			Name:      "wallet_operation_duration_seconds",
			Help:      "Wallet operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)

	// InsufficientTotal counts debits rejected for lack of funds.
	InsufficientTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "wallet_insufficient_balance_total",
			Help:      "Debits rejected because the balance could not cover the cost.",
		},
	)

	// ReconcileDrift reports the last observed wallet/ledger drift in credits.
	ReconcileDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meterline",
			Name:      "wallet_reconcile_drift",
			Help:      "Difference between wallet balances and ledger entry sums.",
		},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal, OpDuration, InsufficientTotal, ReconcileDrift)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(opType string) func() {
	OpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
