package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_admission_gate_decisions_total",
		Help: "Admission gate decisions grouped by result.",
	}, []string{"result"})
	issueOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_coupon_issue_outcomes_total",
		Help: "Terminal coupon issuance outcomes grouped by outcome.",
	}, []string{"outcome"})
	queueDequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashsale_admission_queue_dequeued_total",
		Help: "Total number of users taken from admission queues.",
	})
	activeQueues = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flashsale_admission_active_queues",
		Help: "Number of coupon queues seen by the last scheduler pass.",
	})
)
