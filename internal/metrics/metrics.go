package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qrquest"

// Metrics holds the quest counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations    prometheus.Counter
	Answers          *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	Completions      prometheus.Counter
	Conflicts        prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
}

// New registers the quest metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Participants registered",
		}),
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers recorded in the ledger",
		}, []string{"correct"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Requests rejected by the quest engine",
		}, []string{"reason"}),
		Completions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion ranks assigned",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_conflicts_total",
			Help:      "Ledger transactions retried after a serialization conflict",
		}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Best-effort notifications that failed",
		}, []string{"event"}),
	}
}

func (m *Metrics) Registration() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *Metrics) Answer(correct bool) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Completion() {
	if m == nil {
		return
	}
	m.Completions.Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) DeliveryFailed(event string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(event).Inc()
}
