package saga

import (
	"context"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Inventory списывает и возвращает складские остатки.
type Inventory interface {
	Deduct(ctx context.Context, productID, qty int64) (domain.Product, error)
	Restore(ctx context.Context, sagaID string, productID, qty int64) error
}

// Coupons применяет и возвращает купоны пользователя.
type Coupons interface {
	Use(ctx context.Context, userID, userCouponID int64) (domain.UserCoupon, error)
	Restore(ctx context.Context, sagaID string, userCouponID int64) error
}

// Balances списывает и возвращает деньги пользователя.
type Balances interface {
	Deduct(ctx context.Context, userID, amountMinor int64) error
	Restore(ctx context.Context, sagaID string, userID, amountMinor int64) error
}

// SideEffects фиксирует последствия завершённого заказа (outbox).
// Ошибка только логируется и не откатывает сагу.
type SideEffects interface {
	OrderCompleted(ctx context.Context, sagaID string, order domain.Order) error
}
