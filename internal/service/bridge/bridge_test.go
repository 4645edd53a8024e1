package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

func TestBridge_ReturnsCorrelatedResponse(t *testing.T) {
	bus := eventbus.New(nil)
	b := New(bus, nil)

	eventbus.On(bus, func(_ context.Context, req events.StockDeductionRequested) error {
		b.Deliver(req.CorrelationID, events.StockDeductionCompleted{
			CorrelationID: req.CorrelationID,
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
			Outcome:       events.Outcome{Success: true},
		})
		return nil
	})

	id := uuid.NewString()
	resp, err := Await[events.StockDeductionCompleted](context.Background(), b,
		events.StockDeductionRequested{CorrelationID: id, ProductID: 3, Quantity: 2}, id, time.Second)
	require.NoError(t, err)
	require.Equal(t, id, resp.CorrelationID)
	require.EqualValues(t, 3, resp.ProductID)
	require.True(t, resp.Success)
	require.Zero(t, b.Pending())
}

func TestBridge_TimeoutIsDistinctAndCleansUp(t *testing.T) {
	bus := eventbus.New(nil)
	b := New(bus, nil)

	start := time.Now()
	_, err := b.PublishAndWait(context.Background(), events.StockDeductionRequested{CorrelationID: "c-1"},
		"c-1", events.TypeStockDeductionCompleted, time.Second)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, domain.ErrProcessingTimeout)
	require.False(t, domain.IsRejection(err))
	require.GreaterOrEqual(t, elapsed, time.Second)
	require.Less(t, elapsed, 2*time.Second)
	require.Zero(t, b.Pending())
}

func TestBridge_DeliverIgnoresUnknownAndMismatched(t *testing.T) {
	bus := eventbus.New(nil)
	b := New(bus, nil)

	require.False(t, b.Deliver("nobody", events.StockDeductionCompleted{}))

	done := make(chan error, 1)
	go func() {
		_, err := b.PublishAndWait(context.Background(), events.CouponUsageRequested{CorrelationID: "c-2"},
			"c-2", events.TypeCouponUsageCompleted, 2*time.Second)
		done <- err
	}()

	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, b.Deliver("c-2", events.StockDeductionCompleted{CorrelationID: "c-2"}), "wrong type must be ignored")
	require.Equal(t, 1, b.Pending())

	require.True(t, b.Deliver("c-2", events.CouponUsageCompleted{CorrelationID: "c-2"}))
	require.False(t, b.Deliver("c-2", events.CouponUsageCompleted{CorrelationID: "c-2"}), "first delivery wins")
	require.NoError(t, <-done)
}

func TestBridge_ContextCancellation(t *testing.T) {
	bus := eventbus.New(nil)
	b := New(bus, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.PublishAndWait(ctx, events.BalanceDeductionRequested{CorrelationID: "c-3"},
		"c-3", events.TypeBalanceDeductionCompleted, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, b.Pending())
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, eventbus.Event) error {
	return errors.New("bus down")
}

func TestBridge_PublishFailure(t *testing.T) {
	b := New(failingPublisher{}, nil)

	_, err := b.PublishAndWait(context.Background(), events.StockRestorationRequested{CorrelationID: "c-4"},
		"c-4", events.TypeStockRestorationCompleted, time.Second)
	require.Error(t, err)
	require.Zero(t, b.Pending())
}

func TestBridge_DeliverAfterTimeoutReportsUnanswered(t *testing.T) {
	bus := eventbus.New(nil)
	b := New(bus, nil)
	delivered := make(chan bool, 1)

	eventbus.On(bus, func(_ context.Context, req events.BalanceDeductionRequested) error {
		time.Sleep(100 * time.Millisecond)
		delivered <- b.Deliver(req.CorrelationID, events.BalanceDeductionCompleted{CorrelationID: req.CorrelationID})
		return nil
	})

	id := uuid.NewString()
	_, err := Await[events.BalanceDeductionCompleted](context.Background(), b,
		events.BalanceDeductionRequested{CorrelationID: id, UserID: 1, AmountMinor: 10}, id, 20*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrProcessingTimeout)
	require.False(t, <-delivered, "caller is gone, responder has to undo its work")
}

func TestBridge_ResponseDeliveredAtDeadlineIsKept(t *testing.T) {
	b := New(eventbus.New(nil), nil)
	ch := make(chan eventbus.Event, 1)
	b.waiters["c-1"] = waiter{ch: ch, want: events.BalanceDeductionCompleted{}.EventType()}

	require.True(t, b.Deliver("c-1", events.BalanceDeductionCompleted{CorrelationID: "c-1"}))
	resp, ok := b.lateResponse("c-1", ch)
	require.True(t, ok)
	require.Equal(t, "c-1", resp.(events.BalanceDeductionCompleted).CorrelationID)

	other := make(chan eventbus.Event, 1)
	b.waiters["c-2"] = waiter{ch: other, want: events.BalanceDeductionCompleted{}.EventType()}
	_, ok = b.lateResponse("c-2", other)
	require.False(t, ok)
	require.False(t, b.Deliver("c-2", events.BalanceDeductionCompleted{CorrelationID: "c-2"}))
	require.Zero(t, b.Pending())
}
