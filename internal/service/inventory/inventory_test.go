package inventory

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

type harness struct {
	repo    domain.ProductRepository
	bus     *eventbus.Bus
	bridge  *bridge.Bridge
	client  *BridgeClient
	product domain.Product
}

func newHarness(t *testing.T, stock int64) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	repo := memory.NewProductRepository()
	product, err := repo.Create(context.Background(), domain.Product{Name: "lamp", PriceMinor: 2500, Stock: stock})
	require.NoError(t, err)

	bus := eventbus.New(nil)
	b := bridge.New(bus, nil)
	NewHandler(NewService(repo, nil), bus, b, compensation.NewGuard(redisstore.New(rc)), nil).Register()

	return &harness{
		repo:    repo,
		bus:     bus,
		bridge:  b,
		client:  NewBridgeClient(b).WithTimeouts(time.Second, time.Second),
		product: product,
	}
}

func TestBridgeClient_DeductAndRestore(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	product, err := h.client.Deduct(ctx, h.product.ID, 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, product.Stock)
	require.Equal(t, "lamp", product.Name)

	_, err = h.client.Deduct(ctx, h.product.ID, 2)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.NoError(t, h.client.Restore(ctx, "", h.product.ID, 2))
	stored, err := h.repo.Get(ctx, h.product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, stored.Stock)

	_, err = h.client.Deduct(ctx, 999, 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.Zero(t, h.bridge.Pending())
}

func TestHandler_SagaRestorationRunsOnce(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.bus.Publish(ctx, events.StockRestorationRequested{SagaID: "saga-1", ProductID: h.product.ID, Quantity: 4}))
	}
	h.bus.Wait()

	stored, err := h.repo.Get(ctx, h.product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, stored.Stock)

	require.NoError(t, h.bus.Publish(ctx, events.StockRestorationRequested{SagaID: "saga-2", ProductID: h.product.ID, Quantity: 1}))
	h.bus.Wait()
	stored, err = h.repo.Get(ctx, h.product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, stored.Stock)
}

// slowProducts задерживает списание остатка дольше таймаута клиента.
type slowProducts struct {
	domain.ProductRepository
	delay time.Duration
}

func (r slowProducts) DeductStock(ctx context.Context, id int64, qty int64) (domain.Product, error) {
	time.Sleep(r.delay)
	return r.ProductRepository.DeductStock(ctx, id, qty)
}

func TestHandler_TimedOutDeductionIsReverted(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	product, err := repo.Create(ctx, domain.Product{Name: "lamp", PriceMinor: 2500, Stock: 3})
	require.NoError(t, err)

	bus := eventbus.New(nil)
	b := bridge.New(bus, nil)
	NewHandler(NewService(slowProducts{ProductRepository: repo, delay: 300 * time.Millisecond}, nil), bus, b, nil, nil).Register()
	client := NewBridgeClient(b).WithTimeouts(100*time.Millisecond, time.Second)

	_, err = client.Deduct(ctx, product.ID, 2)
	require.ErrorIs(t, err, domain.ErrProcessingTimeout)

	bus.Wait()
	stored, err := repo.Get(ctx, product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, stored.Stock)
	require.Zero(t, b.Pending())
}
