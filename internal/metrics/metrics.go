package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	PaymentsProcessed *prometheus.CounterVec
	CreditsApplied    prometheus.Counter
	PoolDistributions *prometheus.CounterVec
	WebhookRejected   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "payments_processed_total",
			Help:      "Registration and upgrade payments processed.",
		}, []string{"kind"}),
		CreditsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "receipts_written_total",
			Help:      "Receipt rows written by committed operations.",
		}),
		PoolDistributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "pool_distributions_total",
			Help:      "Completed pool distribution cycles.",
		}, []string{"pool"}),
		WebhookRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "webhook_rejected_total",
			Help:      "Payment webhooks rejected by validation.",
		}),
	}
	reg.MustRegister(m.PaymentsProcessed, m.CreditsApplied, m.PoolDistributions, m.WebhookRejected)
	return m
}
