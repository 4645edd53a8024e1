package coupon

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

// Handler обслуживает купонные события шины.
type Handler struct {
	svc    *Service
	bus    *eventbus.Bus
	bridge Responder
	guard  *compensation.Guard
	logger *log.Entry
}

func NewHandler(svc *Service, bus *eventbus.Bus, bridge Responder, guard *compensation.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "coupon-handler")
	}
	return &Handler{svc: svc, bus: bus, bridge: bridge, guard: guard, logger: logger}
}

// Register подписывает обработчик на шину.
func (h *Handler) Register() {
	eventbus.On(h.bus, h.onUsage)
	eventbus.On(h.bus, h.onRestoration)
}

func (h *Handler) onUsage(ctx context.Context, req events.CouponUsageRequested) error {
	uc, err := h.svc.Use(ctx, req.UserID, req.UserCouponID)
	reply := events.CouponUsageCompleted{
		CorrelationID: req.CorrelationID,
		SagaID:        req.SagaID,
		UserCoupon:    uc,
		Outcome:       events.ResultOf(err),
	}
	if err == nil && !h.deliver(req.CorrelationID, reply) {
		// вызывающий уже получил таймаут и не компенсирует это использование
		fields := log.Fields{"saga_id": req.SagaID, "user_coupon_id": req.UserCouponID}
		if undoErr := h.svc.Restore(context.WithoutCancel(ctx), req.UserCouponID); undoErr != nil {
			h.logger.WithError(undoErr).WithFields(fields).Error("failed to revert unanswered coupon usage")
		} else {
			h.logger.WithFields(fields).Warn("coupon usage reverted: requester timed out")
		}
	}
	return h.bus.Publish(ctx, reply)
}

func (h *Handler) onRestoration(ctx context.Context, req events.CouponRestorationRequested) error {
	reply := events.CouponRestorationCompleted{
		CorrelationID: req.CorrelationID,
		SagaID:        req.SagaID,
		UserCouponID:  req.UserCouponID,
	}
	fields := log.Fields{"saga_id": req.SagaID, "user_coupon_id": req.UserCouponID}

	if req.SagaID != "" && h.guard != nil {
		first, err := h.guard.Once(ctx, req.SagaID, compensation.KindCoupon, req.UserCouponID)
		if err != nil {
			h.logger.WithError(err).WithFields(fields).Error("compensation guard unavailable, restoration skipped")
			reply.Outcome = events.ResultOf(err)
			return h.respond(ctx, req.CorrelationID, reply)
		}
		if !first {
			h.logger.WithFields(fields).Info("coupon already restored for saga")
			reply.Outcome = events.ResultOf(nil)
			return h.respond(ctx, req.CorrelationID, reply)
		}
	}

	err := h.svc.Restore(ctx, req.UserCouponID)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("coupon restoration failed")
		h.release(ctx, req.SagaID, compensation.KindCoupon, req.UserCouponID, fields)
	}
	reply.Outcome = events.ResultOf(err)
	return h.respond(ctx, req.CorrelationID, reply)
}

func (h *Handler) respond(ctx context.Context, correlationID string, response eventbus.Event) error {
	h.deliver(correlationID, response)
	return h.bus.Publish(ctx, response)
}

func (h *Handler) deliver(correlationID string, response eventbus.Event) bool {
	if correlationID == "" || h.bridge == nil {
		return true
	}
	return h.bridge.Deliver(correlationID, response)
}

func (h *Handler) release(ctx context.Context, sagaID, kind string, id int64, fields log.Fields) {
	if sagaID == "" || h.guard == nil {
		return
	}
	if err := h.guard.Release(context.WithoutCancel(ctx), sagaID, kind, id); err != nil {
		h.logger.WithError(err).WithFields(fields).Error("failed to release compensation guard")
	}
}
