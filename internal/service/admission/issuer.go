package admission

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const messageIssued = "coupon issued"

// MessageTemporaryFailure сообщает клиенту, что заявку можно повторить.
const MessageTemporaryFailure = "temporary failure, please retry"

// MessageProcessing сопровождает отметку заявки, переданной на асинхронную выдачу.
const MessageProcessing = "issue request accepted for processing"

// Issuer выполняет выдачу купона пользователю, извлечённому из очереди.
type Issuer interface {
	Issue(ctx context.Context, couponID, userID int64) error
}

// DirectIssuer выдаёт купон синхронно: шлюз, затем авторитетная запись в репозиторий.
type DirectIssuer struct {
	cache   *CouponCache
	gate    *Gate
	repo    domain.CouponRepository
	results *ResultStore
	logger  *log.Entry
	now     func() time.Time
}

// NewDirectIssuer собирает issuer из компонентов допуска.
func NewDirectIssuer(cache *CouponCache, gate *Gate, repo domain.CouponRepository, results *ResultStore, logger *log.Entry) *DirectIssuer {
	if logger == nil {
		logger = log.WithField("component", "coupon-issuer")
	}
	return &DirectIssuer{
		cache:   cache,
		gate:    gate,
		repo:    repo,
		results: results,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue всегда записывает терминальный результат. Ошибка возвращается только для
// инфраструктурных сбоев, когда заявку имеет смысл повторить.
func (d *DirectIssuer) Issue(ctx context.Context, couponID, userID int64) error {
	result, err := d.issue(ctx, couponID, userID)
	result.CouponID = couponID
	result.UserID = userID
	result.ProcessedAt = d.now().UTC()

	switch {
	case result.Success:
		issueOutcomes.WithLabelValues("issued").Inc()
	case err != nil:
		issueOutcomes.WithLabelValues("error").Inc()
	default:
		issueOutcomes.WithLabelValues("rejected").Inc()
	}

	if saveErr := d.results.Save(ctx, result); saveErr != nil {
		d.logger.WithError(saveErr).WithFields(log.Fields{
			"coupon_id": couponID,
			"user_id":   userID,
		}).Warn("failed to store issuance result")
	}
	return err
}

func (d *DirectIssuer) issue(ctx context.Context, couponID, userID int64) (domain.IssuanceResult, error) {
	now := d.now()
	fields := log.Fields{"coupon_id": couponID, "user_id": userID}

	coupon, err := d.cache.Get(ctx, couponID)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return failure(err), nil
		}
		return failure(errors.New(MessageTemporaryFailure)), err
	}
	if !coupon.CanIssue(now) {
		if coupon.Remaining() == 0 {
			return failure(domain.ErrCouponExhausted), nil
		}
		return failure(domain.ErrCouponNotIssuable), nil
	}

	admitted := false
	switch d.gate.TryAdmit(ctx, couponID, userID, coupon.MaxIssuance) {
	case domain.AdmissionAlreadyIssued:
		return failure(domain.ErrCouponAlreadyIssued), nil
	case domain.AdmissionExhausted:
		return failure(domain.ErrCouponExhausted), nil
	case domain.AdmissionAdmitted:
		admitted = true
	case domain.AdmissionIndeterminate:
		d.logger.WithFields(fields).Info("admission gate unavailable, using transactional path")
	}

	if _, err := d.repo.Issue(ctx, couponID, userID, now); err != nil {
		// Повторная выдача по данным БД означает, что место в шлюзе действительно занято.
		if admitted && !errors.Is(err, domain.ErrCouponAlreadyIssued) {
			if rbErr := d.gate.Rollback(ctx, couponID, userID); rbErr != nil {
				d.logger.WithError(rbErr).WithFields(fields).Warn("failed to roll back admission")
			}
		}
		if domain.IsRejection(err) {
			return failure(err), nil
		}
		d.logger.WithError(err).WithFields(fields).Error("coupon issuance failed")
		return failure(errors.New(MessageTemporaryFailure)), err
	}

	if err := d.cache.IncrementIssued(ctx, couponID); err != nil {
		d.logger.WithError(err).WithFields(fields).Warn("failed to update coupon cache")
	}
	return domain.IssuanceResult{Success: true, Message: messageIssued}, nil
}

func failure(reason error) domain.IssuanceResult {
	return domain.IssuanceResult{Success: false, Message: reason.Error()}
}
