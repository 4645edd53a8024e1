package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// OrderRepository хранит заказы в памяти с индексом по пользователю.
type OrderRepository struct {
	mu     sync.RWMutex
	byID   map[string]domain.Order
	byUser map[int64][]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:   make(map[string]domain.Order),
		byUser: make(map[int64][]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byID[order.ID]; taken {
		return domain.ErrOrderAlreadyExists
	}
	order.Items = slices.Clone(order.Items)
	r.byID[order.ID] = order
	r.byUser[order.UserID] = append(r.byUser[order.UserID], order.ID)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.byID[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Items = slices.Clone(order.Items)
	return order, nil
}

// ListByUser отдаёт заказы от новых к старым, при равном времени по убыванию ID.
func (r *OrderRepository) ListByUser(_ context.Context, userID int64, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	ids := r.byUser[userID]
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order := r.byID[id]
		order.Items = slices.Clone(order.Items)
		orders = append(orders, order)
	}
	r.mu.RUnlock()

	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.OrderedAt.Compare(a.OrderedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
