package admission

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/redisstore"
)

type fixture struct {
	mr      *miniredis.Miniredis
	store   *redisstore.Store
	coupons *memory.CouponRepository
	gate    *Gate
	queue   *Queue
	cache   *CouponCache
	results *ResultStore
	issuer  *DirectIssuer
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.New(client)
	coupons := memory.NewCouponRepository()
	gate := NewGate(store, nil)
	queue := NewQueue(store)
	cache := NewCouponCache(store, coupons, nil)
	results := NewResultStore(store)

	return &fixture{
		mr:      mr,
		store:   store,
		coupons: coupons,
		gate:    gate,
		queue:   queue,
		cache:   cache,
		results: results,
		issuer:  NewDirectIssuer(cache, gate, coupons, results, nil),
		service: NewService(gate, queue, cache, results, coupons, nil),
	}
}

func (f *fixture) createCoupon(t *testing.T, maxIssuance int64) domain.Coupon {
	t.Helper()
	coupon, err := f.coupons.Create(context.Background(), domain.Coupon{
		Name:          "flash",
		DiscountMinor: 1000,
		MaxIssuance:   maxIssuance,
		Status:        domain.CouponStatusActive,
	})
	require.NoError(t, err)
	return coupon
}
