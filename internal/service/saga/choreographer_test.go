package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

func TestChoreographer_CompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chair := f.product(t, "chair", 4000, 3)
	f.fund(t, 7, 10_000)
	uc := f.userCoupon(t, 7, 1000)

	sagaID, err := f.choreographer.Submit(ctx, withCoupon(orderFor(7, chair, 2), uc.ID))
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseCompleted, status.Phase)
	require.NotEmpty(t, status.OrderID)

	types := make([]string, 0, len(status.Entries))
	for _, entry := range status.Entries {
		types = append(types, entry.Type)
	}
	require.Equal(t, []string{
		string(events.TypeOrderProcessingStarted),
		string(events.TypeStockProcessed),
		string(events.TypeCouponProcessed),
		string(events.TypeBalanceProcessed),
		string(events.TypeOrderCompleted),
	}, types)

	order, err := f.orders.Get(ctx, status.OrderID)
	require.NoError(t, err)
	require.EqualValues(t, 7000, order.DiscountedMinor)
	require.EqualValues(t, 1, f.stockOf(t, chair.ID))
	require.EqualValues(t, 3000, f.balanceOf(t, 7))
	require.Equal(t, domain.UserCouponStatusUsed, f.couponStatus(t, uc.ID))
}

func TestChoreographer_BalanceFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chair := f.product(t, "chair", 4000, 3)
	f.fund(t, 8, 1000)
	uc := f.userCoupon(t, 8, 500)

	sagaID, err := f.choreographer.Submit(ctx, withCoupon(orderFor(8, chair, 2), uc.ID))
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseFailed, status.Phase)
	require.Equal(t, domain.SagaStepBalance, status.FailedStep)
	require.Contains(t, status.Reason, domain.ErrInsufficientBalance.Error())

	require.EqualValues(t, 3, f.stockOf(t, chair.ID))
	require.Equal(t, domain.UserCouponStatusAvailable, f.couponStatus(t, uc.ID))
	require.EqualValues(t, 1000, f.balanceOf(t, 8))
}

func TestChoreographer_UsedCouponFailsAtCouponStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	desk := f.product(t, "desk", 9000, 1)
	f.fund(t, 2, 20_000)
	uc := f.userCoupon(t, 2, 500)
	_, err := f.couponSv.Use(ctx, 2, uc.ID)
	require.NoError(t, err)

	sagaID, err := f.choreographer.Submit(ctx, withCoupon(orderFor(2, desk, 1), uc.ID))
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseFailed, status.Phase)
	require.Equal(t, domain.SagaStepCoupon, status.FailedStep)
	require.EqualValues(t, 1, f.stockOf(t, desk.ID))
	require.Equal(t, domain.UserCouponStatusUsed, f.couponStatus(t, uc.ID), "coupon used elsewhere stays used")
}

func TestChoreographer_PersistFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chair := f.product(t, "chair", 4000, 3)
	f.fund(t, 8, 10_000)
	uc := f.userCoupon(t, 8, 500)
	f.failing.fail.Store(true)

	sagaID, err := f.choreographer.Submit(ctx, withCoupon(orderFor(8, chair, 2), uc.ID))
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseFailed, status.Phase)
	require.Equal(t, domain.SagaStepPersist, status.FailedStep)

	require.EqualValues(t, 3, f.stockOf(t, chair.ID))
	require.Equal(t, domain.UserCouponStatusAvailable, f.couponStatus(t, uc.ID))
	require.EqualValues(t, 10_000, f.balanceOf(t, 8))

	orders, err := f.orders.ListByUser(ctx, 8, 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestChoreographer_StalePriceFailsAtStockStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tv := f.product(t, "tv", 100_000, 3)
	f.fund(t, 6, 200_000)

	req := orderFor(6, tv, 1)
	req.Items[0].UnitPriceMinor = 1
	sagaID, err := f.choreographer.Submit(ctx, req)
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseFailed, status.Phase)
	require.Equal(t, domain.SagaStepStock, status.FailedStep)
	require.Contains(t, status.Reason, domain.ErrPriceChanged.Error())
	require.EqualValues(t, 3, f.stockOf(t, tv.ID))
	require.EqualValues(t, 200_000, f.balanceOf(t, 6))
}

func TestChoreographer_InvalidRequestFailsAtValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sagaID, err := f.choreographer.Submit(ctx, domain.OrderRequest{UserID: 5})
	require.NoError(t, err)
	f.bus.Wait()

	status, err := f.choreographer.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaPhaseFailed, status.Phase)
	require.Equal(t, domain.SagaStepValidate, status.FailedStep)
}

func TestChoreographer_UnknownSaga(t *testing.T) {
	f := newFixture(t)

	_, err := f.choreographer.Status(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSagaNotFound)
}

func TestStateFromProgress_MarksCompletedSteps(t *testing.T) {
	ucID := int64(4)
	p := events.Progress{
		SagaID: "s",
		Request: domain.OrderRequest{
			UserID:       1,
			UserCouponID: &ucID,
			Items: []domain.OrderLine{
				{ProductID: 1, Quantity: 2, UnitPriceMinor: 10},
				{ProductID: 2, Quantity: 1, UnitPriceMinor: 10},
				{ProductID: 1, Quantity: 3, UnitPriceMinor: 10},
			},
		},
	}

	st := stateFromProgress(p, stepIndexStock)
	require.Empty(t, st.deducted)
	require.False(t, st.couponUsed)

	st = stateFromProgress(p, stepIndexCoupon)
	require.Equal(t, []stockLine{{productID: 1, qty: 5}, {productID: 2, qty: 1}}, st.deducted)
	require.False(t, st.couponUsed)

	st = stateFromProgress(p, stepIndexPersist)
	require.True(t, st.couponUsed)
	require.True(t, st.debited)
}
