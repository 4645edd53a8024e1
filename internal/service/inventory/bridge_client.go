package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
)

// BridgeClient вызывает склад через шину событий с ожиданием ответа.
type BridgeClient struct {
	bridge         *bridge.Bridge
	requestTimeout time.Duration
	restoreTimeout time.Duration
}

// NewBridgeClient создаёт клиента с таймаутами 5 с на списание и 3 с на возврат.
func NewBridgeClient(b *bridge.Bridge) *BridgeClient {
	return &BridgeClient{
		bridge:         b,
		requestTimeout: bridge.DefaultRequestTimeout,
		restoreTimeout: bridge.DefaultRestoreTimeout,
	}
}

// WithTimeouts переопределяет таймауты (используется в тестах).
func (c *BridgeClient) WithTimeouts(request, restore time.Duration) *BridgeClient {
	c.requestTimeout = request
	c.restoreTimeout = restore
	return c
}

func (c *BridgeClient) Deduct(ctx context.Context, productID, qty int64) (domain.Product, error) {
	id := uuid.NewString()
	resp, err := bridge.Await[events.StockDeductionCompleted](ctx, c.bridge, events.StockDeductionRequested{
		CorrelationID: id,
		ProductID:     productID,
		Quantity:      qty,
	}, id, c.requestTimeout)
	if err != nil {
		return domain.Product{}, err
	}
	if err := resp.Outcome.Error(); err != nil {
		return domain.Product{}, err
	}
	return resp.Product, nil
}

// Restore возвращает остаток; непустой sagaID включает защиту от повторной компенсации.
func (c *BridgeClient) Restore(ctx context.Context, sagaID string, productID, qty int64) error {
	id := uuid.NewString()
	resp, err := bridge.Await[events.StockRestorationCompleted](ctx, c.bridge, events.StockRestorationRequested{
		CorrelationID: id,
		SagaID:        sagaID,
		ProductID:     productID,
		Quantity:      qty,
	}, id, c.restoreTimeout)
	if err != nil {
		return err
	}
	return resp.Outcome.Error()
}
