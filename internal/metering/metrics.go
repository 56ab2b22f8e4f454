package metering

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActionsChargedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "actions_charged_total",
			Help:      "Successfully charged actions by kind",
		},
		[]string{"action_kind"},
	)

	ChargeDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "charges_denied_total",
			Help:      "Charges refused before or at the debit",
		},
		[]string{"reason"},
	)

	TokensMeteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "tokens_metered_total",
			Help:      "Token count across charged actions",
		},
	)

	RefundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "refunds_total",
			Help:      "Compensating refunds issued",
		},
	)

	ChargeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "meterline",
			Name:      "charge_duration_seconds",
			Help:      "End to end charge pipeline latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(ActionsChargedTotal)
	prometheus.MustRegister(ChargeDeniedTotal)
	prometheus.MustRegister(TokensMeteredTotal)
	prometheus.MustRegister(RefundsTotal)
	prometheus.MustRegister(ChargeDuration)
}

func observeCharge() func() {
	start := time.Now()
	return func() {
		ChargeDuration.Observe(time.Since(start).Seconds())
	}
}

func chargeDenied(reason string) {
	ChargeDeniedTotal.WithLabelValues(reason).Inc()
}
