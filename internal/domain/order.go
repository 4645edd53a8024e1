package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// OrderLine — позиция во входящем запросе на заказ. UnitPriceMinor — цена,
// которую видел клиент; к оплате идёт цена товара из хранилища.
type OrderLine struct {
	ProductID      int64
	ProductName    string
	Quantity       int32
	UnitPriceMinor int64
}

// PriceFor собирает сохраняемую позицию по цене товара из хранилища.
// Расхождение с ценой клиента даёт ErrPriceChanged.
func (l OrderLine) PriceFor(product Product) (OrderItem, error) {
	if l.UnitPriceMinor != product.PriceMinor {
		return OrderItem{}, fmt.Errorf("%w: product %d costs %d, request expected %d",
			ErrPriceChanged, product.ID, product.PriceMinor, l.UnitPriceMinor)
	}
	name := l.ProductName
	if name == "" {
		name = product.Name
	}
	return OrderItem{
		ProductID:      l.ProductID,
		ProductName:    name,
		Quantity:       l.Quantity,
		UnitPriceMinor: product.PriceMinor,
		LineTotalMinor: int64(l.Quantity) * product.PriceMinor,
	}, nil
}

// OrderRequest — запрос на оформление заказа, который проходит через сагу.
type OrderRequest struct {
	UserID       int64
	Items        []OrderLine
	UserCouponID *int64
}

// Validate проверяет инварианты запроса и возвращает все найденные нарушения.
func (r OrderRequest) Validate() error {
	var errs []error
	if r.UserID <= 0 {
		errs = append(errs, ErrUserIDInvalid)
	}
	if len(r.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range r.Items {
		if item.ProductID <= 0 {
			errs = append(errs, ErrProductIDInvalid)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor <= 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	return errors.Join(errs...)
}

// ItemsTotal — сумма сохраняемых позиций.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalMinor
	}
	return total
}

// HasCoupon сообщает, указан ли купон в запросе.
func (r OrderRequest) HasCoupon() bool {
	return r.UserCouponID != nil && *r.UserCouponID > 0
}

// ApplyDiscount возвращает сумму к оплате, не опускаясь ниже нуля.
func ApplyDiscount(total, discount int64) int64 {
	if discount <= 0 {
		return total
	}
	if discount >= total {
		return 0
	}
	return total - discount
}

// OrderItem — сохранённая позиция заказа.
type OrderItem struct {
	ProductID      int64
	ProductName    string
	Quantity       int32
	UnitPriceMinor int64
	LineTotalMinor int64
}

// Order создаётся только после успешного завершения всех шагов саги.
type Order struct {
	ID              string
	UserID          int64
	Items           []OrderItem
	TotalMinor      int64
	DiscountedMinor int64
	DiscountMinor   int64
	UserCouponID    *int64
	Status          OrderStatus
	OrderedAt       time.Time
}

// Product — товар со складским остатком.
type Product struct {
	ID         int64
	Name       string
	PriceMinor int64
	Stock      int64
}

// Balance — денежный счёт пользователя.
type Balance struct {
	UserID      int64
	AmountMinor int64
	UpdatedAt   time.Time
}
