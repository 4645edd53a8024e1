package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.Product
	next  int64
}

// NewProductRepository создаёт in-memory каталог товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[int64]domain.Product)}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == 0 {
		r.next++
		product.ID = r.next
	} else if product.ID > r.next {
		r.next = product.ID
	}
	r.items[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// DeductStock уменьшает остаток, только если его хватает.
func (r *productRepositoryInMemory) DeductStock(_ context.Context, id int64, qty int64) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrItemQtyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if product.Stock < qty {
		return domain.Product{}, domain.ErrInsufficientStock
	}
	product.Stock -= qty
	r.items[id] = product
	return product, nil
}

func (r *productRepositoryInMemory) RestoreStock(_ context.Context, id int64, qty int64) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrItemQtyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.Stock += qty
	r.items[id] = product
	return product, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
