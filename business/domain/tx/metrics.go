package tx

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	storedTransactions   prometheus.Counter
	fraudTransactions    prometheus.Counter
	rejectedTransactions *prometheus.CounterVec
	revealRequests       *prometheus.CounterVec
	publishErrors        prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := Metrics{
		storedTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_stored_transactions_total", namespace),
			Help: "The number of transactions stored in the ledger",
		}),
		fraudTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_fraud_transactions_total", namespace),
			Help: "The number of stored transactions that were flagged as fraud",
		}),
		rejectedTransactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rejected_transactions_total", namespace),
			Help: "The number of rejected store requests",
		}, []string{"reason"}),
		revealRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_reveal_requests_total", namespace),
			Help: "The number of reveal requests by outcome",
		}, []string{"outcome"}),
		publishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_publish_errors_total", namespace),
			Help: "The number of transaction events that could not be published",
		}),
	}
	return &m
}

func (m *Metrics) IncStored(fraud bool) {
	m.storedTransactions.Inc()
	if fraud {
		m.fraudTransactions.Inc()
	}
}

func (m *Metrics) IncRejected(reason string) {
	m.rejectedTransactions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncReveal(granted bool) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.revealRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPublishErrors() {
	m.publishErrors.Inc()
}
