package balance

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

// Handler обслуживает события списания и возврата средств.
type Handler struct {
	svc    *Service
	bus    *eventbus.Bus
	bridge Responder
	guard  *compensation.Guard
	logger *log.Entry
}

func NewHandler(svc *Service, bus *eventbus.Bus, bridge Responder, guard *compensation.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "balance-handler")
	}
	return &Handler{svc: svc, bus: bus, bridge: bridge, guard: guard, logger: logger}
}

// Register подписывает обработчик на шину.
func (h *Handler) Register() {
	eventbus.On(h.bus, h.onDeduction)
	eventbus.On(h.bus, h.onRestoration)
}

func (h *Handler) onDeduction(ctx context.Context, req events.BalanceDeductionRequested) error {
	err := h.svc.Deduct(ctx, req.UserID, req.AmountMinor)
	reply := events.BalanceDeductionCompleted{
		CorrelationID: req.CorrelationID,
		SagaID:        req.SagaID,
		UserID:        req.UserID,
		AmountMinor:   req.AmountMinor,
		Outcome:       events.ResultOf(err),
	}
	if err == nil && !h.deliver(req.CorrelationID, reply) {
		// вызывающий уже получил таймаут и не компенсирует это списание
		fields := log.Fields{"saga_id": req.SagaID, "user_id": req.UserID, "amount": req.AmountMinor}
		if undoErr := h.svc.Restore(context.WithoutCancel(ctx), req.UserID, req.AmountMinor); undoErr != nil {
			h.logger.WithError(undoErr).WithFields(fields).Error("failed to revert unanswered balance deduction")
		} else {
			h.logger.WithFields(fields).Warn("balance deduction reverted: requester timed out")
		}
	}
	return h.bus.Publish(ctx, reply)
}

func (h *Handler) onRestoration(ctx context.Context, req events.BalanceRestorationRequested) error {
	reply := events.BalanceRestorationCompleted{
		CorrelationID: req.CorrelationID,
		SagaID:        req.SagaID,
		UserID:        req.UserID,
		AmountMinor:   req.AmountMinor,
	}
	fields := log.Fields{"saga_id": req.SagaID, "user_id": req.UserID, "amount": req.AmountMinor}

	if req.SagaID != "" && h.guard != nil {
		first, err := h.guard.Once(ctx, req.SagaID, compensation.KindBalance, req.UserID)
		if err != nil {
			h.logger.WithError(err).WithFields(fields).Error("compensation guard unavailable, restoration skipped")
			reply.Outcome = events.ResultOf(err)
			return h.respond(ctx, req.CorrelationID, reply)
		}
		if !first {
			h.logger.WithFields(fields).Info("balance already restored for saga")
			reply.Outcome = events.ResultOf(nil)
			return h.respond(ctx, req.CorrelationID, reply)
		}
	}

	err := h.svc.Restore(ctx, req.UserID, req.AmountMinor)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("balance restoration failed")
		h.release(ctx, req.SagaID, compensation.KindBalance, req.UserID, fields)
	}
	reply.Outcome = events.ResultOf(err)
	return h.respond(ctx, req.CorrelationID, reply)
}

func (h *Handler) respond(ctx context.Context, correlationID string, response eventbus.Event) error {
	h.deliver(correlationID, response)
	return h.bus.Publish(ctx, response)
}

// deliver отдаёт ответ мосту. false только когда ответа ждали, но вызывающий уже ушёл.
func (h *Handler) deliver(correlationID string, response eventbus.Event) bool {
	if correlationID == "" || h.bridge == nil {
		return true
	}
	return h.bridge.Deliver(correlationID, response)
}

// release снимает отметку защиты после неудачной компенсации, чтобы повтор её выполнил.
func (h *Handler) release(ctx context.Context, sagaID, kind string, id int64, fields log.Fields) {
	if sagaID == "" || h.guard == nil {
		return
	}
	if err := h.guard.Release(context.WithoutCancel(ctx), sagaID, kind, id); err != nil {
		h.logger.WithError(err).WithFields(fields).Error("failed to release compensation guard")
	}
}
