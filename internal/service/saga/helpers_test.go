package saga

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/service/balance"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
	"github.com/vladislavdragonenkov/flashsale/internal/service/compensation"
	"github.com/vladislavdragonenkov/flashsale/internal/service/coupon"
	"github.com/vladislavdragonenkov/flashsale/internal/service/inventory"
	"github.com/vladislavdragonenkov/flashsale/internal/service/lock"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/redisstore"
)

type fixture struct {
	bus      *eventbus.Bus
	products domain.ProductRepository
	coupons  *memory.CouponRepository
	orders   domain.OrderRepository
	failing  *failingOrders
	outbox   *memory.OutboxRepository
	journal  domain.JournalRepository

	stock    *inventory.Service
	couponSv *coupon.Service
	balances *balance.Service

	locked        *LockedExecutor
	choreographer *Choreographer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	store := redisstore.New(rc)

	f := &fixture{
		bus:      eventbus.New(nil),
		products: memory.NewProductRepository(),
		coupons:  memory.NewCouponRepository(),
		orders:   memory.NewOrderRepository(),
		outbox:   memory.NewOutboxRepository(),
		journal:  memory.NewJournalRepository(),
	}
	f.failing = &failingOrders{OrderRepository: f.orders}
	t.Cleanup(f.bus.Close)

	f.stock = inventory.NewService(f.products, nil)
	f.couponSv = coupon.NewService(f.coupons, f.coupons.UserCoupons(), nil)
	f.balances = balance.NewService(memory.NewBalanceRepository(), nil)

	b := bridge.New(f.bus, nil)
	guard := compensation.NewGuard(store)
	inventory.NewHandler(f.stock, f.bus, b, guard, nil).Register()
	coupon.NewHandler(f.couponSv, f.bus, b, guard, nil).Register()
	balance.NewHandler(f.balances, f.bus, b, guard, nil).Register()

	sideEffects := NewOutboxRecorder(f.outbox, nil)
	def := NewDefinition(Dependencies{
		Inventory:   inventory.NewBridgeClient(b).WithTimeouts(2*time.Second, time.Second),
		Coupons:     coupon.NewBridgeClient(b).WithTimeouts(2*time.Second, time.Second),
		Balances:    balance.NewBridgeClient(b).WithTimeouts(2*time.Second, time.Second),
		Orders:      f.failing,
		SideEffects: sideEffects,
	}, nil, nil)
	f.locked = NewLockedExecutor(def, lock.New(store, 5*time.Millisecond, nil), nil, nil)

	f.choreographer = NewChoreographer(f.bus, ChoreographyDependencies{
		Stock:       f.stock,
		Coupons:     f.couponSv,
		Balances:    f.balances,
		Orders:      f.failing,
		SideEffects: sideEffects,
		Journal:     f.journal,
	}, nil, nil)
	f.choreographer.Register()
	return f
}

var errOrdersDown = errors.New("orders table is read-only")

// failingOrders отказывает в записи заказа, пока включён fail.
type failingOrders struct {
	domain.OrderRepository
	fail atomic.Bool
}

func (r *failingOrders) Create(ctx context.Context, order domain.Order) error {
	if r.fail.Load() {
		return errOrdersDown
	}
	return r.OrderRepository.Create(ctx, order)
}

func (f *fixture) product(t *testing.T, name string, price, stock int64) domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{Name: name, PriceMinor: price, Stock: stock})
	require.NoError(t, err)
	return p
}

func (f *fixture) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := f.balances.Charge(context.Background(), userID, amount)
	require.NoError(t, err)
}

func (f *fixture) userCoupon(t *testing.T, userID, discount int64) domain.UserCoupon {
	t.Helper()
	ctx := context.Background()
	c, err := f.couponSv.Create(ctx, domain.Coupon{Name: "flash", DiscountMinor: discount, MaxIssuance: 100})
	require.NoError(t, err)
	uc, err := f.coupons.Issue(ctx, c.ID, userID, time.Now().UTC())
	require.NoError(t, err)
	return uc
}

func (f *fixture) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := f.products.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) balanceOf(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.balances.Get(context.Background(), userID)
	require.NoError(t, err)
	return b.AmountMinor
}

func (f *fixture) couponStatus(t *testing.T, id int64) domain.UserCouponStatus {
	t.Helper()
	uc, err := f.coupons.UserCoupon(context.Background(), id)
	require.NoError(t, err)
	return uc.Status
}

func orderFor(userID int64, product domain.Product, qty int32) domain.OrderRequest {
	return domain.OrderRequest{
		UserID: userID,
		Items: []domain.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: qty, UnitPriceMinor: product.PriceMinor},
		},
	}
}

func withCoupon(req domain.OrderRequest, userCouponID int64) domain.OrderRequest {
	id := userCouponID
	req.UserCouponID = &id
	return req
}
