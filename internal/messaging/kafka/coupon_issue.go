package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/service/admission"
)

// IssuanceResults сохраняет результат заявки.
type IssuanceResults interface {
	Save(ctx context.Context, result domain.IssuanceResult) error
}

// CouponIssuePublisher передаёт заявки из очереди допуска в Kafka вместо синхронной выдачи.
type CouponIssuePublisher struct {
	producer *Producer
	results  IssuanceResults
	logger   *log.Entry
	now      func() time.Time
}

// NewCouponIssuePublisher создаёт асинхронный admission.Issuer.
func NewCouponIssuePublisher(producer *Producer, results IssuanceResults, logger *log.Entry) *CouponIssuePublisher {
	if logger == nil {
		logger = log.WithField("component", "coupon-issue-publisher")
	}
	return &CouponIssuePublisher{producer: producer, results: results, logger: logger, now: time.Now}
}

// Issue публикует заявку. До публикации пишется отметка PROCESSING, чтобы опрос
// не видел UNKNOWN между извлечением из очереди и ответом консьюмера.
// При сбое публикации клиент получает временную ошибку.
func (p *CouponIssuePublisher) Issue(ctx context.Context, couponID, userID int64) error {
	fields := log.Fields{"coupon_id": couponID, "user_id": userID}
	pending := domain.IssuanceResult{
		CouponID:    couponID,
		UserID:      userID,
		Pending:     true,
		Message:     admission.MessageProcessing,
		ProcessedAt: p.now().UTC(),
	}
	if err := p.results.Save(ctx, pending); err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("failed to mark issue request as processing")
	}

	msg := CouponIssueMessage{CouponID: couponID, UserID: userID, RequestedAt: p.now().UTC()}
	err := p.producer.PublishEvent(ctx, TopicCouponIssue, CouponIssueKey(couponID, userID), msg)
	if err == nil {
		return nil
	}

	p.logger.WithError(err).WithFields(fields).Error("failed to publish coupon issue request")
	result := domain.IssuanceResult{
		CouponID:    couponID,
		UserID:      userID,
		Success:     false,
		Message:     admission.MessageTemporaryFailure,
		ProcessedAt: p.now().UTC(),
	}
	if saveErr := p.results.Save(ctx, result); saveErr != nil {
		p.logger.WithError(saveErr).WithFields(fields).Warn("failed to store issuance result")
	}
	return err
}

// CouponIssueHandler выполняет выдачу по сообщению из coupon-issue-events.
// Битые сообщения пропускаются; ошибки инфраструктуры уходят на повтор.
func CouponIssueHandler(issuer admission.Issuer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "coupon-issue-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		var req CouponIssueMessage
		if err := json.Unmarshal(message.Value, &req); err != nil {
			logger.WithError(err).WithField("offset", message.Offset).Warn("skipping malformed coupon issue message")
			return nil
		}
		if req.CouponID <= 0 || req.UserID <= 0 {
			logger.WithFields(log.Fields{
				"coupon_id": req.CouponID,
				"user_id":   req.UserID,
			}).Warn("skipping coupon issue message with invalid ids")
			return nil
		}
		return issuer.Issue(ctx, req.CouponID, req.UserID)
	}
}

// PayloadHandler адаптирует обработчик тела сообщения к MessageHandler.
func PayloadHandler(fn func(ctx context.Context, payload []byte) error) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return fn(ctx, message.Value)
	}
}

var _ admission.Issuer = (*CouponIssuePublisher)(nil)
