package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

// OutboxPublisher отправляет записи outbox в топик, совпадающий с типом события.
type OutboxPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) *OutboxPublisher {
	return &OutboxPublisher{producer: producer}
}

func (p *OutboxPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	topic, err := TopicFor(msg.EventType)
	if err != nil {
		return err
	}
	if !json.Valid(msg.Payload) {
		return fmt.Errorf("outbox message %s carries invalid json payload", msg.ID)
	}
	return p.producer.PublishRaw(ctx, topic, OutboxKey(msg), msg.Payload, nil)
}

// TopicFor возвращает топик для типа события outbox.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case events.OutboxOrderCompleted:
		return TopicOrderCompleted, nil
	case events.OutboxProductRanking:
		return TopicProductRanking, nil
	case events.OutboxDataPlatformTransfer:
		return TopicDataPlatformTransfer, nil
	default:
		return "", fmt.Errorf("no kafka topic for outbox event type %q", eventType)
	}
}

// OutboxKey сохраняет порядок событий одного агрегата внутри партиции.
func OutboxKey(msg domain.OutboxMessage) string {
	if msg.AggregateID == "" {
		return msg.ID
	}
	switch msg.AggregateType {
	case events.AggregateProduct:
		return "product-" + msg.AggregateID
	case events.AggregateOrder:
		return "order-" + msg.AggregateID
	default:
		return msg.AggregateID
	}
}

// DeadLetterPublisher складывает недоставленные записи outbox в DLQ-топик.
type DeadLetterPublisher struct {
	producer *Producer
}

// NewDeadLetterPublisher создаёт паблишер для Worker.WithDLQPublisher.
func NewDeadLetterPublisher(producer *Producer) *DeadLetterPublisher {
	return &DeadLetterPublisher{producer: producer}
}

func (p *DeadLetterPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}
	headers := map[string]string{}
	if topic, err := TopicFor(msg.EventType); err == nil {
		headers[HeaderOriginalTopic] = topic
	}
	return p.producer.PublishRaw(ctx, TopicDeadLetterQueue, OutboxKey(msg), msg.Payload, headers)
}

var (
	_ domain.OutboxPublisher = (*OutboxPublisher)(nil)
	_ domain.OutboxPublisher = (*DeadLetterPublisher)(nil)
)
