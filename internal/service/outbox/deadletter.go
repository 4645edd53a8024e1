package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// DeadLetter: конверт сообщения, не доставленного за все попытки.
// Payload встраивается как JSON, если он валиден, иначе строкой.
type DeadLetter struct {
	OutboxID      string          `json:"outboxId"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failedAt"`
}

func newDeadLetter(msg domain.OutboxMessage, cause error, at time.Time) DeadLetter {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	return DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Error:         cause.Error(),
		FailedAt:      at,
	}
}

// sendDeadLetter публикует конверт тем же OutboxPublisher-контрактом:
// метаданные исходного сообщения сохраняются, payload заменяется конвертом.
func sendDeadLetter(ctx context.Context, dlq domain.OutboxPublisher, msg domain.OutboxMessage, cause error) error {
	envelope, err := json.Marshal(newDeadLetter(msg, cause, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	dead := msg
	dead.Payload = envelope
	if err := dlq.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
