package saga

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

func TestLockedExecutor_CompletesOrderWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keyboard := f.product(t, "keyboard", 1500, 5)
	f.fund(t, 1, 10_000)
	uc := f.userCoupon(t, 1, 700)

	result, err := f.locked.Execute(ctx, withCoupon(orderFor(1, keyboard, 2), uc.ID))
	require.NoError(t, err)
	require.NotEmpty(t, result.SagaID)
	require.Empty(t, result.FailedStep)

	order := result.Order
	require.Equal(t, domain.OrderStatusCompleted, order.Status)
	require.EqualValues(t, 3000, order.TotalMinor)
	require.EqualValues(t, 700, order.DiscountMinor)
	require.EqualValues(t, 2300, order.DiscountedMinor)
	require.NotNil(t, order.UserCouponID)
	require.Len(t, order.Items, 1)
	require.EqualValues(t, 3000, order.Items[0].LineTotalMinor)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, stored.ID)

	require.EqualValues(t, 3, f.stockOf(t, keyboard.ID))
	require.EqualValues(t, 7700, f.balanceOf(t, 1))
	require.Equal(t, domain.UserCouponStatusUsed, f.couponStatus(t, uc.ID))

	pending, err := f.outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Equal(t, events.OutboxOrderCompleted, pending[0].EventType)
	require.Equal(t, events.OutboxProductRanking, pending[1].EventType)
	require.Equal(t, events.OutboxDataPlatformTransfer, pending[2].EventType)

	var ranking events.ProductRankingPayload
	require.NoError(t, json.Unmarshal(pending[1].Payload, &ranking))
	require.Equal(t, keyboard.ID, ranking.ProductID)
	require.EqualValues(t, 2, ranking.Quantity)
}

func TestLockedExecutor_FullDiscountSkipsDebit(t *testing.T) {
	f := newFixture(t)
	mouse := f.product(t, "mouse", 500, 1)
	uc := f.userCoupon(t, 4, 1000)

	// счёт пользователя не создан: нулевое списание не должно к нему обращаться
	result, err := f.locked.Execute(context.Background(), withCoupon(orderFor(4, mouse, 1), uc.ID))
	require.NoError(t, err)
	require.Zero(t, result.Order.DiscountedMinor)
	require.EqualValues(t, 500, result.Order.DiscountMinor)
}

// Один товар на складе, пять пользователей заказывают одновременно.
func TestLockedExecutor_ConcurrentOrdersForLastUnit(t *testing.T) {
	f := newFixture(t)
	lamp := f.product(t, "lamp", 1000, 1)
	for user := int64(1); user <= 5; user++ {
		f.fund(t, user, 5000)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		outOfStock   int
		otherFailure []error
	)
	for user := int64(1); user <= 5; user++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			result, err := f.locked.Execute(context.Background(), orderFor(userID, lamp, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock) && result.FailedStep == domain.SagaStepStock:
				outOfStock++
			default:
				otherFailure = append(otherFailure, err)
			}
		}(user)
	}
	wg.Wait()

	require.Empty(t, otherFailure)
	require.Equal(t, 1, succeeded)
	require.Equal(t, 4, outOfStock)
	require.Zero(t, f.stockOf(t, lamp.ID))
}

func TestLockedExecutor_UsedCouponRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.product(t, "book", 800, 2)
	f.fund(t, 3, 5000)
	uc := f.userCoupon(t, 3, 300)
	_, err := f.couponSv.Use(ctx, 3, uc.ID)
	require.NoError(t, err)

	result, err := f.locked.Execute(ctx, withCoupon(orderFor(3, book, 1), uc.ID))
	require.ErrorIs(t, err, domain.ErrUserCouponNotAvailable)
	require.Equal(t, domain.SagaStepCoupon, result.FailedStep)

	require.EqualValues(t, 2, f.stockOf(t, book.ID))
	require.EqualValues(t, 5000, f.balanceOf(t, 3))
}

func TestLockedExecutor_InsufficientBalanceCompensatesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.product(t, "book", 800, 2)
	f.fund(t, 3, 100)
	uc := f.userCoupon(t, 3, 300)

	result, err := f.locked.Execute(ctx, withCoupon(orderFor(3, book, 2), uc.ID))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Equal(t, domain.SagaStepBalance, result.FailedStep)

	require.EqualValues(t, 2, f.stockOf(t, book.ID))
	require.Equal(t, domain.UserCouponStatusAvailable, f.couponStatus(t, uc.ID))
	require.EqualValues(t, 100, f.balanceOf(t, 3))

	orders, err := f.orders.ListByUser(ctx, 3, 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestLockedExecutor_PartialStockFailureRestoresDeductedItems(t *testing.T) {
	f := newFixture(t)
	pen := f.product(t, "pen", 100, 10)
	ink := f.product(t, "ink", 200, 1)
	f.fund(t, 9, 10_000)

	req := domain.OrderRequest{
		UserID: 9,
		Items: []domain.OrderLine{
			{ProductID: pen.ID, Quantity: 3, UnitPriceMinor: 100},
			{ProductID: pen.ID, Quantity: 2, UnitPriceMinor: 100},
			{ProductID: ink.ID, Quantity: 2, UnitPriceMinor: 200},
		},
	}
	result, err := f.locked.Execute(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Equal(t, domain.SagaStepStock, result.FailedStep)

	require.EqualValues(t, 10, f.stockOf(t, pen.ID))
	require.EqualValues(t, 1, f.stockOf(t, ink.ID))
}

func TestLockedExecutor_PersistFailureCompensatesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.product(t, "book", 800, 2)
	f.fund(t, 3, 5000)
	uc := f.userCoupon(t, 3, 300)
	f.failing.fail.Store(true)

	result, err := f.locked.Execute(ctx, withCoupon(orderFor(3, book, 2), uc.ID))
	require.ErrorIs(t, err, errOrdersDown)
	require.Equal(t, domain.SagaStepPersist, result.FailedStep)

	require.EqualValues(t, 2, f.stockOf(t, book.ID))
	require.Equal(t, domain.UserCouponStatusAvailable, f.couponStatus(t, uc.ID))
	require.EqualValues(t, 5000, f.balanceOf(t, 3))

	orders, err := f.orders.ListByUser(ctx, 3, 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestLockedExecutor_ChargesStoredPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tv := f.product(t, "tv", 100_000, 3)
	f.fund(t, 6, 200_000)

	req := orderFor(6, tv, 1)
	req.Items[0].UnitPriceMinor = 1
	result, err := f.locked.Execute(ctx, req)
	require.ErrorIs(t, err, domain.ErrPriceChanged)
	require.Equal(t, domain.SagaStepStock, result.FailedStep)

	require.EqualValues(t, 3, f.stockOf(t, tv.ID))
	require.EqualValues(t, 200_000, f.balanceOf(t, 6))
	orders, err := f.orders.ListByUser(ctx, 6, 0)
	require.NoError(t, err)
	require.Empty(t, orders)

	result, err = f.locked.Execute(ctx, orderFor(6, tv, 1))
	require.NoError(t, err)
	require.EqualValues(t, 100_000, result.Order.TotalMinor)
	require.EqualValues(t, 100_000, f.balanceOf(t, 6))
}

func TestLockedExecutor_ValidationFailsBeforeLocking(t *testing.T) {
	f := newFixture(t)

	result, err := f.locked.Execute(context.Background(), domain.OrderRequest{UserID: 0})
	require.Error(t, err)
	require.True(t, domain.IsValidation(err))
	require.Equal(t, domain.SagaStepValidate, result.FailedStep)
}
