package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type balanceRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewBalanceRepository создаёт PostgreSQL-реализацию BalanceRepository.
func NewBalanceRepository(store *Store) domain.BalanceRepository {
	return &balanceRepository{db: store.DB(), now: time.Now}
}

func (r *balanceRepository) Get(ctx context.Context, userID int64) (domain.Balance, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	balance, err := scanBalance(r.db.QueryRowContext(ctx, `
		SELECT user_id, amount_minor, updated_at FROM balances WHERE user_id = $1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Balance{}, domain.ErrBalanceNotFound
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

// Charge пополняет счёт через upsert.
func (r *balanceRepository) Charge(ctx context.Context, userID, amountMinor int64) (domain.Balance, error) {
	if amountMinor <= 0 {
		return domain.Balance{}, domain.ErrAmountInvalid
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	balance, err := scanBalance(r.db.QueryRowContext(ctx, `
		INSERT INTO balances (user_id, amount_minor, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO UPDATE
		SET amount_minor = balances.amount_minor + EXCLUDED.amount_minor,
		    updated_at = EXCLUDED.updated_at
		RETURNING user_id, amount_minor, updated_at
	`, userID, amountMinor, r.now().UTC()))
	if err != nil {
		return domain.Balance{}, fmt.Errorf("charge balance: %w", err)
	}
	return balance, nil
}

// Deduct списывает сумму, только если хватает средств.
func (r *balanceRepository) Deduct(ctx context.Context, userID, amountMinor int64) (domain.Balance, error) {
	if amountMinor <= 0 {
		return domain.Balance{}, domain.ErrAmountInvalid
	}
	opCtx, cancel := opContext(ctx)
	defer cancel()

	balance, err := scanBalance(r.db.QueryRowContext(opCtx, `
		UPDATE balances SET amount_minor = amount_minor - $2, updated_at = $3
		WHERE user_id = $1 AND amount_minor >= $2
		RETURNING user_id, amount_minor, updated_at
	`, userID, amountMinor, r.now().UTC()))
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Balance{}, fmt.Errorf("deduct balance: %w", err)
	}
	if _, err := r.Get(ctx, userID); err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{}, domain.ErrInsufficientBalance
}

func scanBalance(row rowScanner) (domain.Balance, error) {
	var balance domain.Balance
	if err := row.Scan(&balance.UserID, &balance.AmountMinor, &balance.UpdatedAt); err != nil {
		return domain.Balance{}, err
	}
	balance.UpdatedAt = balance.UpdatedAt.UTC()
	return balance, nil
}

var _ domain.BalanceRepository = (*balanceRepository)(nil)
