package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const orderColumns = `id, user_id, total_minor, discount_minor, discounted_minor, user_coupon_id, status, ordered_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create сохраняет заказ и позиции одной транзакцией.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var couponID sql.NullInt64
	if order.UserCouponID != nil {
		couponID = sql.NullInt64{Int64: *order.UserCouponID, Valid: true}
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, order.UserID, order.TotalMinor, order.DiscountMinor, order.DiscountedMinor,
			couponID, string(order.Status), order.OrderedAt.UTC(),
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (
					order_id, product_id, product_name, quantity, unit_price_minor, line_total_minor
				) VALUES ($1,$2,$3,$4,$5,$6)
			`,
				order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceMinor, item.LineTotalMinor,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListByUser возвращает заказы пользователя от новых к старым; limit<=0 снимает ограничение.
func (r *orderRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY ordered_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil || len(orders) == 0 {
		return orders, err
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	itemsByOrder, err := r.loadItemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	byOrder, err := r.loadItemsFor(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}
	if items := byOrder[orderID]; items != nil {
		return items, nil
	}
	return []domain.OrderItem{}, nil
}

// loadItemsFor читает позиции нескольких заказов одним запросом.
func (r *orderRepository) loadItemsFor(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price_minor, line_total_minor
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceMinor, &item.LineTotalMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		byOrder[orderID] = append(byOrder[orderID], item)
	}
	return byOrder, rows.Err()
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		couponID sql.NullInt64
		status   string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.TotalMinor, &order.DiscountMinor, &order.DiscountedMinor,
		&couponID, &status, &order.OrderedAt,
	); err != nil {
		return domain.Order{}, err
	}
	if couponID.Valid {
		id := couponID.Int64
		order.UserCouponID = &id
	}
	order.Status = domain.OrderStatus(status)
	order.OrderedAt = order.OrderedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
