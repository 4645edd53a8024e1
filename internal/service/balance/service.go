package balance

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Service управляет счетами пользователей.
type Service struct {
	repo   domain.BalanceRepository
	logger *log.Entry
}

// NewService создаёт сервис счетов.
func NewService(repo domain.BalanceRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "balance")
	}
	return &Service{repo: repo, logger: logger}
}

// Get возвращает счёт пользователя.
func (s *Service) Get(ctx context.Context, userID int64) (domain.Balance, error) {
	return s.repo.Get(ctx, userID)
}

// Charge пополняет счёт.
func (s *Service) Charge(ctx context.Context, userID, amountMinor int64) (domain.Balance, error) {
	if userID <= 0 {
		return domain.Balance{}, domain.ErrUserIDInvalid
	}
	return s.repo.Charge(ctx, userID, amountMinor)
}

// Deduct списывает сумму. Нулевая сумма (полная скидка) ничего не меняет.
func (s *Service) Deduct(ctx context.Context, userID, amountMinor int64) error {
	if amountMinor == 0 {
		return nil
	}
	balance, err := s.repo.Deduct(ctx, userID, amountMinor)
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"user_id":   userID,
		"amount":    amountMinor,
		"remaining": balance.AmountMinor,
	}).Debug("balance deducted")
	return nil
}

// Restore возвращает списанную сумму на счёт.
func (s *Service) Restore(ctx context.Context, userID, amountMinor int64) error {
	if amountMinor == 0 {
		return nil
	}
	_, err := s.repo.Charge(ctx, userID, amountMinor)
	return err
}
