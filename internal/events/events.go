// Package events описывает события, которыми обмениваются сага и доменные обработчики.
// События *Requested несут CorrelationID, если ответ ждёт мост; ответное *Completed его повторяет.
package events

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
)

const (
	TypeStockDeductionRequested     eventbus.Type = "StockDeductionRequested"
	TypeStockDeductionCompleted     eventbus.Type = "StockDeductionCompleted"
	TypeStockRestorationRequested   eventbus.Type = "StockRestorationRequested"
	TypeStockRestorationCompleted   eventbus.Type = "StockRestorationCompleted"
	TypeCouponUsageRequested        eventbus.Type = "CouponUsageRequested"
	TypeCouponUsageCompleted        eventbus.Type = "CouponUsageCompleted"
	TypeCouponRestorationRequested  eventbus.Type = "CouponRestorationRequested"
	TypeCouponRestorationCompleted  eventbus.Type = "CouponRestorationCompleted"
	TypeBalanceDeductionRequested   eventbus.Type = "BalanceDeductionRequested"
	TypeBalanceDeductionCompleted   eventbus.Type = "BalanceDeductionCompleted"
	TypeBalanceRestorationRequested eventbus.Type = "BalanceRestorationRequested"
	TypeBalanceRestorationCompleted eventbus.Type = "BalanceRestorationCompleted"

	TypeOrderProcessingStarted eventbus.Type = "OrderProcessingStarted"
	TypeStockProcessed         eventbus.Type = "StockProcessed"
	TypeCouponProcessed        eventbus.Type = "CouponProcessed"
	TypeBalanceProcessed       eventbus.Type = "BalanceProcessed"
	TypeOrderCompleted         eventbus.Type = "OrderCompleted"
	TypeOrderProcessingFailed  eventbus.Type = "OrderProcessingFailed"
)

// Outcome: общая часть ответных событий. Err сохраняет исходную ошибку внутри процесса.
type Outcome struct {
	Success bool
	Reason  string
	Err     error `json:"-"`
}

// ResultOf строит Outcome по результату операции.
func ResultOf(err error) Outcome {
	if err == nil {
		return Outcome{Success: true}
	}
	return Outcome{Success: false, Reason: err.Error(), Err: err}
}

// Error возвращает ошибку отказа или nil при успехе.
func (o Outcome) Error() error {
	if o.Success {
		return nil
	}
	if o.Err != nil {
		return o.Err
	}
	if o.Reason == "" {
		return errors.New("operation failed")
	}
	return errors.New(o.Reason)
}

// StockDeductionRequested: запрос на списание остатка.
type StockDeductionRequested struct {
	CorrelationID string
	SagaID        string
	ProductID     int64
	Quantity      int64
}

func (StockDeductionRequested) EventType() eventbus.Type { return TypeStockDeductionRequested }

// StockDeductionCompleted: ответ на списание остатка.
type StockDeductionCompleted struct {
	CorrelationID string
	SagaID        string
	ProductID     int64
	Quantity      int64
	Product       domain.Product
	Outcome
}

func (StockDeductionCompleted) EventType() eventbus.Type { return TypeStockDeductionCompleted }

// StockRestorationRequested: компенсация списания остатка.
type StockRestorationRequested struct {
	CorrelationID string
	SagaID        string
	ProductID     int64
	Quantity      int64
}

func (StockRestorationRequested) EventType() eventbus.Type { return TypeStockRestorationRequested }

type StockRestorationCompleted struct {
	CorrelationID string
	SagaID        string
	ProductID     int64
	Quantity      int64
	Outcome
}

func (StockRestorationCompleted) EventType() eventbus.Type { return TypeStockRestorationCompleted }

// CouponUsageRequested: запрос на использование купона пользователя.
type CouponUsageRequested struct {
	CorrelationID string
	SagaID        string
	UserID        int64
	UserCouponID  int64
}

func (CouponUsageRequested) EventType() eventbus.Type { return TypeCouponUsageRequested }

type CouponUsageCompleted struct {
	CorrelationID string
	SagaID        string
	UserCoupon    domain.UserCoupon
	Outcome
}

func (CouponUsageCompleted) EventType() eventbus.Type { return TypeCouponUsageCompleted }

type CouponRestorationRequested struct {
	CorrelationID string
	SagaID        string
	UserCouponID  int64
}

func (CouponRestorationRequested) EventType() eventbus.Type { return TypeCouponRestorationRequested }

type CouponRestorationCompleted struct {
	CorrelationID string
	SagaID        string
	UserCouponID  int64
	Outcome
}

func (CouponRestorationCompleted) EventType() eventbus.Type { return TypeCouponRestorationCompleted }

// BalanceDeductionRequested: запрос на списание со счёта.
type BalanceDeductionRequested struct {
	CorrelationID string
	SagaID        string
	UserID        int64
	AmountMinor   int64
}

func (BalanceDeductionRequested) EventType() eventbus.Type { return TypeBalanceDeductionRequested }

type BalanceDeductionCompleted struct {
	CorrelationID string
	SagaID        string
	UserID        int64
	AmountMinor   int64
	Outcome
}

func (BalanceDeductionCompleted) EventType() eventbus.Type { return TypeBalanceDeductionCompleted }

type BalanceRestorationRequested struct {
	CorrelationID string
	SagaID        string
	UserID        int64
	AmountMinor   int64
}

func (BalanceRestorationRequested) EventType() eventbus.Type { return TypeBalanceRestorationRequested }

type BalanceRestorationCompleted struct {
	CorrelationID string
	SagaID        string
	UserID        int64
	AmountMinor   int64
	Outcome
}

func (BalanceRestorationCompleted) EventType() eventbus.Type { return TypeBalanceRestorationCompleted }

// Progress: состояние хореографической саги, передаваемое от шага к шагу.
type Progress struct {
	SagaID          string
	OrderID         string
	Request         domain.OrderRequest
	Items           []domain.OrderItem
	TotalMinor      int64
	DiscountMinor   int64
	DiscountedMinor int64
	StartedAt       time.Time
}

// OrderProcessingStarted открывает хореографическую сагу.
type OrderProcessingStarted struct{ Progress }

func (OrderProcessingStarted) EventType() eventbus.Type { return TypeOrderProcessingStarted }

// StockProcessed: все позиции списаны со склада.
type StockProcessed struct{ Progress }

func (StockProcessed) EventType() eventbus.Type { return TypeStockProcessed }

// CouponProcessed: купон применён (или отсутствует), итог со скидкой посчитан.
type CouponProcessed struct{ Progress }

func (CouponProcessed) EventType() eventbus.Type { return TypeCouponProcessed }

// BalanceProcessed: со счёта списана сумма со скидкой.
type BalanceProcessed struct{ Progress }

func (BalanceProcessed) EventType() eventbus.Type { return TypeBalanceProcessed }

// OrderCompleted: заказ сохранён.
type OrderCompleted struct {
	SagaID string
	Order  domain.Order
}

func (OrderCompleted) EventType() eventbus.Type { return TypeOrderCompleted }

// OrderProcessingFailed: сага завершилась отказом на шаге Step.
type OrderProcessingFailed struct {
	SagaID  string
	OrderID string
	Step    domain.SagaStep
	Reason  string
}

func (OrderProcessingFailed) EventType() eventbus.Type { return TypeOrderProcessingFailed }
