package saga

import (
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

// stockLine: списанное количество товара, агрегированное по продукту.
type stockLine struct {
	productID int64
	qty       int64
}

// State: данные одной саги, которые шаги читают и дополняют.
type State struct {
	SagaID          string
	OrderID         string
	Request         domain.OrderRequest
	Items           []domain.OrderItem
	TotalMinor      int64
	DiscountMinor   int64
	DiscountedMinor int64
	StartedAt       time.Time
	Order           domain.Order

	// Отметки для компенсации.
	deducted   []stockLine
	couponUsed bool
	debited    bool
}

func newState(sagaID, orderID string, req domain.OrderRequest, now time.Time) *State {
	return &State{SagaID: sagaID, OrderID: orderID, Request: req, StartedAt: now}
}

// addDeducted учитывает списание, сохраняя порядок первого появления продукта.
func (s *State) addDeducted(productID, qty int64) {
	for i := range s.deducted {
		if s.deducted[i].productID == productID {
			s.deducted[i].qty += qty
			return
		}
	}
	s.deducted = append(s.deducted, stockLine{productID: productID, qty: qty})
}

// Progress упаковывает состояние в событие хореографии.
func (s *State) Progress() events.Progress {
	return events.Progress{
		SagaID:          s.SagaID,
		OrderID:         s.OrderID,
		Request:         s.Request,
		Items:           s.Items,
		TotalMinor:      s.TotalMinor,
		DiscountMinor:   s.DiscountMinor,
		DiscountedMinor: s.DiscountedMinor,
		StartedAt:       s.StartedAt,
	}
}

// stateFromProgress восстанавливает состояние после done завершённых шагов,
// включая отметки, нужные для компенсации.
func stateFromProgress(p events.Progress, done int) *State {
	st := &State{
		SagaID:          p.SagaID,
		OrderID:         p.OrderID,
		Request:         p.Request,
		Items:           p.Items,
		TotalMinor:      p.TotalMinor,
		DiscountMinor:   p.DiscountMinor,
		DiscountedMinor: p.DiscountedMinor,
		StartedAt:       p.StartedAt,
	}
	if done > stepIndexStock {
		for _, line := range p.Request.Items {
			st.addDeducted(line.ProductID, int64(line.Quantity))
		}
	}
	if done > stepIndexCoupon {
		st.couponUsed = p.Request.HasCoupon()
	}
	if done > stepIndexBalance {
		st.debited = true
	}
	return st
}
