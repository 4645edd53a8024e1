package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/messaging/kafka"
)

// parseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func parseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer, если брокеры заданы. Пустой список: nil, nil.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// consumerSpec: группа потребителей и её обработчик.
type consumerSpec struct {
	group   string
	topic   string
	handler kafka.MessageHandler
}

// startConsumers подключает группы и запускает чтение. Возвращает функцию остановки.
// Если одна из групп не создалась, уже запущенные останавливаются.
func startConsumers(ctx context.Context, brokers []string, dlq *kafka.Producer, specs []consumerSpec, logger *log.Entry) (func(), error) {
	started := make([]*kafka.Consumer, 0, len(specs))
	stopAll := func() {
		for _, consumer := range started {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop kafka consumer")
			}
		}
	}

	for _, spec := range specs {
		consumer, err := kafka.NewConsumer(brokers, spec.group, []string{spec.topic}, spec.handler, kafka.WithDLQ(dlq))
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("consumer %s: %w", spec.group, err)
		}
		if err := consumer.Start(ctx); err != nil {
			_ = consumer.Stop()
			stopAll()
			return nil, fmt.Errorf("start consumer %s: %w", spec.group, err)
		}
		started = append(started, consumer)
	}
	return stopAll, nil
}
