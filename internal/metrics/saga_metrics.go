package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flashsale"

var stepBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// SagaMetrics: метрики саги оформления заказа. Метка variant различает
// исполнение под блокировкой (locked) и хореографию (choreographed).
// Nil-получатель допустим: все методы тогда ничего не делают.
type SagaMetrics struct {
	started       *prometheus.CounterVec
	completed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	compensations *prometheus.CounterVec

	duration     prometheus.Histogram
	stepDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge

	journalEntries prometheus.Counter
	outboxEvents   prometheus.Counter
}

func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "saga", Name: name, Help: help,
		}, labels))
	}

	return &SagaMetrics{
		started:       counterVec("started_total", "Order sagas started.", "variant"),
		completed:     counterVec("completed_total", "Order sagas completed successfully.", "variant"),
		failed:        counterVec("failed_total", "Order sagas failed, by failing step.", "variant", "step"),
		compensations: counterVec("compensations_total", "Compensating actions by step and result.", "step", "result"),
		duration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "saga", Name: "duration_seconds",
			Help:    "Locked saga execution time.",
			Buckets: prometheus.DefBuckets,
		})),
		stepDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "saga", Name: "step_duration_seconds",
			Help:    "Saga step execution time.",
			Buckets: stepBuckets,
		}, []string{"step"})),
		inFlight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sagas",
			Help: "Locked saga executions in progress.",
		})),
		journalEntries: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "saga", Name: "journal_entries_total",
			Help: "Saga journal entries recorded.",
		})),
		outboxEvents: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "events_total",
			Help: "Outbox events enqueued by sagas.",
		})),
	}
}

// register возвращает уже зарегистрированный коллектор того же типа,
// поэтому повторное создание SagaMetrics в одном реестре безопасно.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		if existing, ok := dup.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(fmt.Sprintf("register collector %T: %v", c, err))
}

func (m *SagaMetrics) RecordSagaStarted(variant string) {
	if m != nil {
		m.started.WithLabelValues(variant).Inc()
	}
}

func (m *SagaMetrics) RecordSagaCompleted(variant string) {
	if m != nil {
		m.completed.WithLabelValues(variant).Inc()
	}
}

// RecordSagaFailed считает отказ саги на шаге step.
func (m *SagaMetrics) RecordSagaFailed(variant, step string) {
	if m != nil {
		m.failed.WithLabelValues(variant, step).Inc()
	}
}

// RecordCompensation считает компенсацию шага; err != nil даёт result="error".
func (m *SagaMetrics) RecordCompensation(step string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.compensations.WithLabelValues(step, result).Inc()
}

func (m *SagaMetrics) RecordSagaInFlightStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *SagaMetrics) RecordSagaInFlightFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *SagaMetrics) RecordSagaDuration(d time.Duration) {
	if m != nil {
		m.duration.Observe(d.Seconds())
	}
}

func (m *SagaMetrics) RecordStepDuration(step string, d time.Duration) {
	if m != nil {
		m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

func (m *SagaMetrics) RecordJournalEntry() {
	if m != nil {
		m.journalEntries.Inc()
	}
}

func (m *SagaMetrics) RecordOutboxEvent() {
	if m != nil {
		m.outboxEvents.Inc()
	}
}
