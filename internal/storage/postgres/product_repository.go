package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price_minor, stock) VALUES ($1,$2,$3) RETURNING id
	`, product.Name, product.PriceMinor, product.Stock).Scan(&product.ID); err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT id, name, price_minor, stock FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// DeductStock списывает остаток условным UPDATE без предварительного чтения.
func (r *productRepository) DeductStock(ctx context.Context, id int64, qty int64) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrItemQtyInvalid
	}
	opCtx, cancel := opContext(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(opCtx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING id, name, price_minor, stock
	`, id, qty))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("deduct stock: %w", err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return domain.Product{}, err
	}
	return domain.Product{}, domain.ErrInsufficientStock
}

func (r *productRepository) RestoreStock(ctx context.Context, id int64, qty int64) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrItemQtyInvalid
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + $2
		WHERE id = $1
		RETURNING id, name, price_minor, stock
	`, id, qty))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("restore stock: %w", err)
	}
	return product, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	if err := row.Scan(&product.ID, &product.Name, &product.PriceMinor, &product.Stock); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
