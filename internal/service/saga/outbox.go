package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/metrics"
)

// OutboxRecorder складывает последствия заказа в transactional outbox:
// order-completed, product-ranking по каждой позиции и data-platform-transfer.
type OutboxRecorder struct {
	repo    domain.OutboxRepository
	metrics *metrics.SagaMetrics
}

// NewOutboxRecorder создаёт запись последствий поверх репозитория outbox.
func NewOutboxRecorder(repo domain.OutboxRepository, sagaMetrics *metrics.SagaMetrics) *OutboxRecorder {
	return &OutboxRecorder{repo: repo, metrics: sagaMetrics}
}

// OrderCompleted ставит в очередь все сообщения; ошибки отдельных сообщений объединяются.
func (r *OutboxRecorder) OrderCompleted(ctx context.Context, sagaID string, order domain.Order) error {
	messages, err := buildOrderMessages(sagaID, order)
	if err != nil {
		return err
	}

	var errs []error
	for _, msg := range messages {
		if _, err := r.repo.Enqueue(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", msg.EventType, err))
			continue
		}
		r.metrics.RecordOutboxEvent()
	}
	return errors.Join(errs...)
}

func buildOrderMessages(sagaID string, order domain.Order) ([]domain.OutboxMessage, error) {
	messages := make([]domain.OutboxMessage, 0, len(order.Items)+2)

	completed, err := json.Marshal(events.OrderCompletedPayload{
		SagaID:          sagaID,
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalMinor:      order.TotalMinor,
		DiscountMinor:   order.DiscountMinor,
		DiscountedMinor: order.DiscountedMinor,
		UserCouponID:    order.UserCouponID,
		OrderedAt:       order.OrderedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order completed: %w", err)
	}
	messages = append(messages, domain.OutboxMessage{
		AggregateType: events.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     events.OutboxOrderCompleted,
		Payload:       completed,
	})

	items := make([]events.DataPlatformItem, 0, len(order.Items))
	for _, item := range order.Items {
		ranking, err := json.Marshal(events.ProductRankingPayload{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			OrderedAt: order.OrderedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal product ranking: %w", err)
		}
		messages = append(messages, domain.OutboxMessage{
			AggregateType: events.AggregateProduct,
			AggregateID:   strconv.FormatInt(item.ProductID, 10),
			EventType:     events.OutboxProductRanking,
			Payload:       ranking,
		})
		items = append(items, events.DataPlatformItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}

	transfer, err := json.Marshal(events.DataPlatformPayload{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Items:           items,
		TotalMinor:      order.TotalMinor,
		DiscountedMinor: order.DiscountedMinor,
		OrderedAt:       order.OrderedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal data platform transfer: %w", err)
	}
	messages = append(messages, domain.OutboxMessage{
		AggregateType: events.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     events.OutboxDataPlatformTransfer,
		Payload:       transfer,
	})
	return messages, nil
}
