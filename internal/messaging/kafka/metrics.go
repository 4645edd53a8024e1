package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var consumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flashsale_kafka_consumed_messages_total",
	Help: "Kafka messages handled by consumers, by topic and result.",
}, []string{"topic", "result"})
