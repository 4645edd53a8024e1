package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
)

// BridgeClient вызывает купонный сервис через шину событий.
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

func (c *BridgeClient) Use(ctx context.Context, userID, userCouponID int64) (domain.UserCoupon, error) {
	id := uuid.NewString()
	resp, err := bridge.Await[events.CouponUsageCompleted](ctx, c.bridge, events.CouponUsageRequested{
		CorrelationID: id,
		UserID:        userID,
		UserCouponID:  userCouponID,
	}, id, c.requestTimeout)
	if err != nil {
		return domain.UserCoupon{}, err
	}
	if err := resp.Outcome.Error(); err != nil {
		return domain.UserCoupon{}, err
	}
	return resp.UserCoupon, nil
}

func (c *BridgeClient) Restore(ctx context.Context, sagaID string, userCouponID int64) error {
	id := uuid.NewString()
	resp, err := bridge.Await[events.CouponRestorationCompleted](ctx, c.bridge, events.CouponRestorationRequested{
		CorrelationID: id,
		SagaID:        sagaID,
		UserCouponID:  userCouponID,
	}, id, c.restoreTimeout)
	if err != nil {
		return err
	}
	return resp.Outcome.Error()
}
