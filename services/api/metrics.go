package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"escrowd/services/escrow"
)

type metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsCompleted prometheus.Counter
	releasedAmount    *prometheus.CounterVec
	refunds           *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &metrics{
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_sessions_created_total",
			Help: "Sessions created.",
		}),
		sessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_sessions_completed_total",
			Help: "Sessions settled through any completion pathway.",
		}),
		releasedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowd_released_amount_total",
			Help: "Base units released from escrow, by pathway.",
		}, []string{"pathway"}),
		refunds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowd_refunds_total",
			Help: "Refunds processed, by pathway.",
		}, []string{"pathway"}),
	}
}

func (m *metrics) observe(evt escrow.Event) {
	switch evt.Kind {
	case escrow.EventSessionCreated:
		m.sessionsCreated.Inc()
	case escrow.EventSessionComplete:
		m.sessionsCompleted.Inc()
		m.releasedAmount.WithLabelValues(evt.Pathway).Add(float64(evt.Amount + evt.FeeAmount))
	case escrow.EventPaymentReleased:
		m.releasedAmount.WithLabelValues(evt.Pathway).Add(float64(evt.Amount))
	case escrow.EventSessionCancel, escrow.EventSessionExpired, escrow.EventRefundProcessed:
		m.refunds.WithLabelValues(evt.Pathway).Inc()
	}
}
