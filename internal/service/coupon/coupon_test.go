package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
	"github.com/vladislavdragonenkov/flashsale/internal/service/compensation"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/redisstore"
)

func setup(t *testing.T) (*Service, *eventbus.Bus, *BridgeClient, domain.UserCoupon) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	repo := memory.NewCouponRepository()
	svc := NewService(repo, repo.UserCoupons(), nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, domain.Coupon{Name: "welcome", DiscountMinor: 700, MaxIssuance: 5})
	require.NoError(t, err)
	uc, err := repo.Issue(ctx, c.ID, 1, time.Now())
	require.NoError(t, err)

	bus := eventbus.New(nil)
	b := bridge.New(bus, nil)
	NewHandler(svc, bus, b, compensation.NewGuard(redisstore.New(rc)), nil).Register()
	return svc, bus, NewBridgeClient(b).WithTimeouts(time.Second, time.Second), uc
}

func TestBridgeClient_UseAndRestore(t *testing.T) {
	svc, _, client, uc := setup(t)
	ctx := context.Background()

	_, err := client.Use(ctx, 2, uc.ID)
	require.ErrorIs(t, err, domain.ErrUserCouponOwnership)

	used, err := client.Use(ctx, 1, uc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserCouponStatusUsed, used.Status)
	require.EqualValues(t, 700, used.DiscountMinor)

	_, err = client.Use(ctx, 1, uc.ID)
	require.ErrorIs(t, err, domain.ErrUserCouponNotAvailable)

	require.NoError(t, client.Restore(ctx, "", uc.ID))
	list, err := svc.ListUserCoupons(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.UserCouponStatusAvailable, list[0].Status)
	require.Nil(t, list[0].UsedAt)

	require.NoError(t, client.Restore(ctx, "", uc.ID), "restoring an available coupon is a no-op")
}

func TestHandler_SagaCouponRestorationIsGuarded(t *testing.T) {
	svc, bus, _, uc := setup(t)
	ctx := context.Background()

	_, err := svc.Use(ctx, 1, uc.ID)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, events.CouponRestorationRequested{SagaID: "s-1", UserCouponID: uc.ID}))
	bus.Wait()

	_, err = svc.Use(ctx, 1, uc.ID)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, events.CouponRestorationRequested{SagaID: "s-1", UserCouponID: uc.ID}))
	bus.Wait()

	list, err := svc.ListUserCoupons(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.UserCouponStatusUsed, list[0].Status, "duplicate compensation must not run twice")
}

// slowUserCoupons задерживает погашение дольше таймаута клиента.
type slowUserCoupons struct {
	domain.UserCouponRepository
	delay time.Duration
}

func (r slowUserCoupons) Use(ctx context.Context, id, userID int64, now time.Time) (domain.UserCoupon, error) {
	time.Sleep(r.delay)
	return r.UserCouponRepository.Use(ctx, id, userID, now)
}

func TestHandler_TimedOutUsageIsReverted(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCouponRepository()
	svc := NewService(repo, slowUserCoupons{UserCouponRepository: repo.UserCoupons(), delay: 300 * time.Millisecond}, nil)
	c, err := svc.Create(ctx, domain.Coupon{Name: "welcome", DiscountMinor: 700, MaxIssuance: 5})
	require.NoError(t, err)
	uc, err := repo.Issue(ctx, c.ID, 1, time.Now())
	require.NoError(t, err)

	bus := eventbus.New(nil)
	b := bridge.New(bus, nil)
	NewHandler(svc, bus, b, nil, nil).Register()
	client := NewBridgeClient(b).WithTimeouts(100*time.Millisecond, time.Second)

	_, err = client.Use(ctx, 1, uc.ID)
	require.ErrorIs(t, err, domain.ErrProcessingTimeout)

	bus.Wait()
	list, err := svc.ListUserCoupons(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.UserCouponStatusAvailable, list[0].Status)
	require.Zero(t, b.Pending())
}

func TestService_CreateValidates(t *testing.T) {
	repo := memory.NewCouponRepository()
	svc := NewService(repo, repo.UserCoupons(), nil)

	_, err := svc.Create(context.Background(), domain.Coupon{MaxIssuance: 0})
	require.ErrorIs(t, err, domain.ErrAmountInvalid)
}
