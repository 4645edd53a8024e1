package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type balanceRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.Balance
}

// NewBalanceRepository создаёт in-memory хранилище счетов.
func NewBalanceRepository() domain.BalanceRepository {
	return &balanceRepositoryInMemory{items: make(map[int64]domain.Balance)}
}

func (r *balanceRepositoryInMemory) Get(_ context.Context, userID int64) (domain.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	balance, ok := r.items[userID]
	if !ok {
		return domain.Balance{}, domain.ErrBalanceNotFound
	}
	return balance, nil
}

func (r *balanceRepositoryInMemory) Charge(_ context.Context, userID, amountMinor int64) (domain.Balance, error) {
	if amountMinor <= 0 {
		return domain.Balance{}, domain.ErrAmountInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	balance := r.items[userID]
	balance.UserID = userID
	balance.AmountMinor += amountMinor
	balance.UpdatedAt = time.Now().UTC()
	r.items[userID] = balance
	return balance, nil
}

// Deduct списывает сумму, только если средств достаточно.
func (r *balanceRepositoryInMemory) Deduct(_ context.Context, userID, amountMinor int64) (domain.Balance, error) {
	if amountMinor <= 0 {
		return domain.Balance{}, domain.ErrAmountInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.items[userID]
	if !ok {
		return domain.Balance{}, domain.ErrBalanceNotFound
	}
	if balance.AmountMinor < amountMinor {
		return domain.Balance{}, domain.ErrInsufficientBalance
	}
	balance.AmountMinor -= amountMinor
	balance.UpdatedAt = time.Now().UTC()
	r.items[userID] = balance
	return balance, nil
}

var _ domain.BalanceRepository = (*balanceRepositoryInMemory)(nil)
