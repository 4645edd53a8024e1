package inventory

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/service/compensation"
)

// Responder доставляет ответ ожидающему вызову моста.
type Responder interface {
	Deliver(correlationID string, response eventbus.Event) bool
}

// Handler обслуживает складские события шины.
type Handler struct {
	svc    *Service
	bus    *eventbus.Bus
	bridge Responder
	guard  *compensation.Guard
	logger *log.Entry
}

// NewHandler создаёт обработчик. guard может быть nil, тогда повторные компенсации не отсекаются.
func NewHandler(svc *Service, bus *eventbus.Bus, bridge Responder, guard *compensation.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "inventory-handler")
	}
	return &Handler{svc: svc, bus: bus, bridge: bridge, guard: guard, logger: logger}
}

// Register подписывает обработчик на шину.
func (h *Handler) Register() {
	eventbus.On(h.bus, h.onDeduction)
	eventbus.On(h.bus, h.onRestoration)
}

func (h *Handler) onDeduction(ctx context.Context, req events.StockDeductionRequested) error {
	product, err := h.svc.Deduct(ctx, req.ProductID, req.Quantity)
	reply := events.StockDeductionCompleted{
		CorrelationID: req.CorrelationID,
		SagaID:        req.SagaID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		Product:       product,
		Outcome:       events.ResultOf(err),
	}
	if err == nil && !h.deliver(req.CorrelationID, reply) {
		// вызывающий уже получил таймаут и не вернёт этот остаток
		fields := log.Fields{"saga_id": req.SagaID, "product_id": req.ProductID, "quantity": req.Quantity}
		if undoErr := h.svc.Restore(context.WithoutCancel(ctx), req.ProductID, req.Quantity); undoErr != nil {
			h.logger.WithError(undoErr).WithFields(fields).Error("failed to revert unanswered stock deduction")
		} else {
			h.logger.WithFields(fields).Warn("stock deduction reverted: requester timed out")
		}
	}
	return h.bus.Publish(ctx, reply)
}

func (h *Handler) onRestoration(ctx context.Context, req events.StockRestorationRequested) error {
	fields := log.Fields{"saga_id": req.SagaID, "product_id": req.ProductID, "quantity": req.Quantity}

	if req.SagaID != "" && h.guard != nil {
		first, err := h.guard.Once(ctx, req.SagaID, compensation.KindStock, req.ProductID)
		if err != nil {
			h.logger.WithError(err).WithFields(fields).Error("compensation guard unavailable, restoration skipped")
			return h.respond(ctx, req.CorrelationID, events.StockRestorationCompleted{
				CorrelationID: req.CorrelationID, SagaID: req.SagaID, ProductID: req.ProductID, Quantity: req.Quantity,
				Outcome: events.ResultOf(err),
			})
		}
		if !first {
			h.logger.WithFields(fields).Info("stock already restored for saga")
			return h.respond(ctx, req.CorrelationID, events.StockRestorationCompleted{
				CorrelationID: req.CorrelationID, SagaID: req.SagaID, ProductID: req.ProductID, Quantity: req.Quantity,
				Outcome: events.ResultOf(nil),
			})
		}
	}

	err := h.svc.Restore(ctx, req.ProductID, req.Quantity)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("stock restoration failed")
		h.release(ctx, req.SagaID, compensation.KindStock, req.ProductID, fields)
	}
	return h.respond(ctx, req.CorrelationID, events.StockRestorationCompleted{
		CorrelationID: req.CorrelationID, SagaID: req.SagaID, ProductID: req.ProductID, Quantity: req.Quantity,
		Outcome: events.ResultOf(err),
	})
}

// respond отдаёт ответ мосту (если его ждут) и публикует его для наблюдателей.
func (h *Handler) respond(ctx context.Context, correlationID string, response eventbus.Event) error {
	h.deliver(correlationID, response)
	return h.bus.Publish(ctx, response)
}

// deliver возвращает false, если ответа ждали, но вызывающий уже ушёл по таймауту.
func (h *Handler) deliver(correlationID string, response eventbus.Event) bool {
	if correlationID == "" || h.bridge == nil {
		return true
	}
	return h.bridge.Deliver(correlationID, response)
}

// release снимает отметку защиты, чтобы неудавшийся возврат можно было повторить.
func (h *Handler) release(ctx context.Context, sagaID, kind string, id int64, fields log.Fields) {
	if sagaID == "" || h.guard == nil {
		return
	}
	if err := h.guard.Release(context.WithoutCancel(ctx), sagaID, kind, id); err != nil {
		h.logger.WithError(err).WithFields(fields).Error("failed to release compensation guard")
	}
}
