package admission

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Ticket: ответ на заявку о выдаче купона.
type Ticket struct {
	State         domain.IssueState
	Position      int64
	AlreadyQueued bool
}

// Service: поверхность заявок и опроса результатов.
type Service struct {
	gate    *Gate
	queue   *Queue
	cache   *CouponCache
	results *ResultStore
	repo    domain.CouponRepository
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт сервис заявок.
func NewService(gate *Gate, queue *Queue, cache *CouponCache, results *ResultStore, repo domain.CouponRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "admission-service")
	}
	return &Service{
		gate:    gate,
		queue:   queue,
		cache:   cache,
		results: results,
		repo:    repo,
		logger:  logger,
		now:     time.Now,
	}
}

// RequestIssue выполняет быстрые проверки и ставит пользователя в очередь.
// Если хранилище координации недоступно, купон выдаётся сразу транзакционным путём.
func (s *Service) RequestIssue(ctx context.Context, userID, couponID int64) (Ticket, error) {
	if userID <= 0 {
		return Ticket{}, domain.ErrUserIDInvalid
	}
	fields := log.Fields{"coupon_id": couponID, "user_id": userID}

	issued, err := s.gate.IsIssued(ctx, couponID, userID)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("issued check failed, using transactional path")
		return s.issueDirect(ctx, couponID, userID)
	}
	if issued {
		return Ticket{}, domain.ErrCouponAlreadyIssued
	}

	coupon, err := s.cache.Get(ctx, couponID)
	if err != nil {
		return Ticket{}, err
	}
	if !coupon.CanIssue(s.now()) {
		if coupon.IssuedCount >= coupon.MaxIssuance {
			return Ticket{}, domain.ErrCouponExhausted
		}
		return Ticket{}, domain.ErrCouponNotIssuable
	}

	exhausted, err := s.gate.IsExhausted(ctx, couponID, coupon.MaxIssuance)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("exhaustion check failed, using transactional path")
		return s.issueDirect(ctx, couponID, userID)
	}
	if exhausted {
		return Ticket{}, domain.ErrCouponExhausted
	}

	added, err := s.queue.Enqueue(ctx, couponID, userID)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("enqueue failed, using transactional path")
		return s.issueDirect(ctx, couponID, userID)
	}

	position, _, err := s.queue.Position(ctx, couponID, userID)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Debug("queue position unavailable")
	}
	return Ticket{State: domain.IssueStateProcessing, Position: position, AlreadyQueued: !added}, nil
}

func (s *Service) issueDirect(ctx context.Context, couponID, userID int64) (Ticket, error) {
	if _, err := s.repo.Issue(ctx, couponID, userID, s.now()); err != nil {
		return Ticket{}, err
	}
	result := domain.IssuanceResult{
		CouponID:    couponID,
		UserID:      userID,
		Success:     true,
		Message:     messageIssued,
		ProcessedAt: s.now().UTC(),
	}
	if err := s.results.Save(ctx, result); err != nil {
		s.logger.WithError(err).WithField("coupon_id", couponID).Debug("issuance result not cached")
	}
	issueOutcomes.WithLabelValues("issued").Inc()
	return Ticket{State: domain.IssueStateIssued}, nil
}

// CheckResult сообщает состояние заявки: сначала результат, затем позиция в очереди.
func (s *Service) CheckResult(ctx context.Context, couponID, userID int64) (domain.IssueStatus, error) {
	result, found, err := s.results.Get(ctx, couponID, userID)
	if err != nil {
		return domain.IssueStatus{}, err
	}
	if found {
		if result.Pending {
			return domain.IssueStatus{State: domain.IssueStateProcessing}, nil
		}
		if result.Success {
			return domain.IssueStatus{State: domain.IssueStateIssued}, nil
		}
		return domain.IssueStatus{State: domain.IssueStateRejected, Reason: result.Message}, nil
	}

	position, queued, err := s.queue.Position(ctx, couponID, userID)
	if err != nil {
		return domain.IssueStatus{}, err
	}
	if queued {
		return domain.IssueStatus{State: domain.IssueStateProcessing, Position: position}, nil
	}
	return domain.IssueStatus{State: domain.IssueStateUnknown}, nil
}

// Cancel снимает заявку пользователя с очереди.
func (s *Service) Cancel(ctx context.Context, couponID, userID int64) (bool, error) {
	return s.queue.Remove(ctx, couponID, userID)
}

// QueueSize возвращает длину очереди купона.
func (s *Service) QueueSize(ctx context.Context, couponID int64) (int64, error) {
	return s.queue.Size(ctx, couponID)
}
