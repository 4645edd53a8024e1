package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
)

func newOrder(id string, userID int64, orderedAt time.Time) domain.Order {
	return domain.Order{
		ID:              id,
		UserID:          userID,
		Status:          domain.OrderStatusCompleted,
		TotalMinor:      500,
		DiscountedMinor: 500,
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "mug", Quantity: 5, UnitPriceMinor: 100, LineTotalMinor: 500},
		},
		OrderedAt: orderedAt,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", 7, time.Now().UTC())

	require.NoError(t, repo.Create(ctx, order))
	require.ErrorIs(t, repo.Create(ctx, order), domain.ErrOrderAlreadyExists)

	stored, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order, stored)

	stored.Items[0].Quantity = 99
	again, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, again.Items[0].Quantity)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, newOrder(id, 7, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newOrder("same-time", 7, base.Add(2*time.Minute))))
	require.NoError(t, repo.Create(ctx, newOrder("foreign", 8, base)))

	orders, err := repo.ListByUser(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, []string{"same-time", "c", "b"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})

	all, err := repo.ListByUser(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	none, err := repo.ListByUser(ctx, 99, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}
