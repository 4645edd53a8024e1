package balance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
)

// BridgeClient вызывает сервис счетов через шину событий.
type BridgeClient struct {
	bridge         *bridge.Bridge
	requestTimeout time.Duration
	restoreTimeout time.Duration
}

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

func (c *BridgeClient) Deduct(ctx context.Context, userID, amountMinor int64) error {
	id := uuid.NewString()
	resp, err := bridge.Await[events.BalanceDeductionCompleted](ctx, c.bridge, events.BalanceDeductionRequested{
		CorrelationID: id,
		UserID:        userID,
		AmountMinor:   amountMinor,
	}, id, c.requestTimeout)
	if err != nil {
		return err
	}
	return resp.Outcome.Error()
}

func (c *BridgeClient) Restore(ctx context.Context, sagaID string, userID, amountMinor int64) error {
	id := uuid.NewString()
	resp, err := bridge.Await[events.BalanceRestorationCompleted](ctx, c.bridge, events.BalanceRestorationRequested{
		CorrelationID: id,
		SagaID:        sagaID,
		UserID:        userID,
		AmountMinor:   amountMinor,
	}, id, c.restoreTimeout)
	if err != nil {
		return err
	}
	return resp.Outcome.Error()
}
