package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

func TestService_RequestAndPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.createCoupon(t, 1)

	first, err := f.service.RequestIssue(ctx, 1, coupon.ID)
	require.NoError(t, err)
	require.Equal(t, Ticket{State: domain.IssueStateProcessing, Position: 1}, first)

	second, err := f.service.RequestIssue(ctx, 2, coupon.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, second.Position)

	again, err := f.service.RequestIssue(ctx, 2, coupon.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyQueued)
	require.EqualValues(t, 2, again.Position)

	status, err := f.service.CheckResult(ctx, coupon.ID, 2)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStatus{State: domain.IssueStateProcessing, Position: 2}, status)

	NewWorker(f.queue, f.issuer).ProcessOnce(ctx)

	status, err = f.service.CheckResult(ctx, coupon.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStateIssued, status.State)

	status, err = f.service.CheckResult(ctx, coupon.ID, 2)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStateRejected, status.State)
	require.NotEmpty(t, status.Reason)

	status, err = f.service.CheckResult(ctx, coupon.ID, 3)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStateUnknown, status.State)

	_, err = f.service.RequestIssue(ctx, 1, coupon.ID)
	require.ErrorIs(t, err, domain.ErrCouponAlreadyIssued)
}

func TestService_FastChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestIssue(ctx, 1, 404)
	require.ErrorIs(t, err, domain.ErrCouponNotFound)

	_, err = f.service.RequestIssue(ctx, 0, 404)
	require.ErrorIs(t, err, domain.ErrUserIDInvalid)

	inactive, err := f.coupons.Create(ctx, domain.Coupon{MaxIssuance: 10, Status: domain.CouponStatusInactive})
	require.NoError(t, err)
	_, err = f.service.RequestIssue(ctx, 1, inactive.ID)
	require.ErrorIs(t, err, domain.ErrCouponNotIssuable)

	coupon := f.createCoupon(t, 1)
	require.Equal(t, domain.AdmissionAdmitted, f.gate.TryAdmit(ctx, coupon.ID, 99, coupon.MaxIssuance))
	_, err = f.service.RequestIssue(ctx, 1, coupon.ID)
	require.ErrorIs(t, err, domain.ErrCouponExhausted)
}

func TestService_CancelRemovesFromQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.createCoupon(t, 5)

	_, err := f.service.RequestIssue(ctx, 1, coupon.ID)
	require.NoError(t, err)

	removed, err := f.service.Cancel(ctx, coupon.ID, 1)
	require.NoError(t, err)
	require.True(t, removed)

	size, err := f.service.QueueSize(ctx, coupon.ID)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestService_TransactionalFallbackWhenStoreDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.createCoupon(t, 1)
	f.mr.Close()

	ticket, err := f.service.RequestIssue(ctx, 1, coupon.ID)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStateIssued, ticket.State)

	_, err = f.service.RequestIssue(ctx, 2, coupon.ID)
	require.ErrorIs(t, err, domain.ErrCouponExhausted)
}

func TestService_PendingResultReportsProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.createCoupon(t, 3)

	require.NoError(t, f.results.Save(ctx, domain.IssuanceResult{CouponID: coupon.ID, UserID: 4, Pending: true, Message: MessageProcessing}))
	status, err := f.service.CheckResult(ctx, coupon.ID, 4)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStatus{State: domain.IssueStateProcessing}, status)

	require.NoError(t, f.results.Save(ctx, domain.IssuanceResult{CouponID: coupon.ID, UserID: 4, Success: true}))
	status, err = f.service.CheckResult(ctx, coupon.ID, 4)
	require.NoError(t, err)
	require.Equal(t, domain.IssueStateIssued, status.State)
}
