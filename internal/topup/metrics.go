package topup

import "github.com/prometheus/client_golang/prometheus"

var (
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "topup_intents_total",
			Help:      "Stripe payment intents by outcome",
		},
		[]string{"status"},
	)

	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterline",
			Name:      "topup_webhooks_total",
			Help:      "Stripe webhook deliveries by outcome",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(IntentsTotal)
	prometheus.MustRegister(WebhooksTotal)
}
