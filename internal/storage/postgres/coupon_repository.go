package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const couponColumns = `id, name, discount_minor, max_issuance, issued_count, valid_from, valid_to, status`

const userCouponColumns = `id, user_id, coupon_id, discount_minor, status, issued_at, used_at`

// CouponRepository хранит купоны и выданные купоны; Issue выполняется одной транзакцией.
type CouponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) *CouponRepository {
	return &CouponRepository{db: store.DB()}
}

func (r *CouponRepository) Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if coupon.Status == "" {
		coupon.Status = domain.CouponStatusActive
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO coupons (name, discount_minor, max_issuance, issued_count, valid_from, valid_to, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`,
		coupon.Name, coupon.DiscountMinor, coupon.MaxIssuance, coupon.IssuedCount,
		nullTime(coupon.ValidFrom), nullTime(coupon.ValidTo), string(coupon.Status),
	).Scan(&coupon.ID)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("insert coupon: %w", err)
	}
	return coupon, nil
}

func (r *CouponRepository) Get(ctx context.Context, id int64) (domain.Coupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	return coupon, nil
}

// Issue блокирует строку купона, проверяет лимит и создаёт UserCoupon.
// Уникальный индекс (user_id, coupon_id) закрывает гонку повторной выдачи.
func (r *CouponRepository) Issue(ctx context.Context, couponID, userID int64, now time.Time) (domain.UserCoupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var issued domain.UserCoupon
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		coupon, err := scanCoupon(tx.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCouponNotFound
		}
		if err != nil {
			return fmt.Errorf("lock coupon: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM user_coupons WHERE user_id = $1 AND coupon_id = $2)
		`, userID, couponID).Scan(&exists); err != nil {
			return fmt.Errorf("check issued coupon: %w", err)
		}
		if exists {
			return domain.ErrCouponAlreadyIssued
		}
		if coupon.IssuedCount >= coupon.MaxIssuance {
			return domain.ErrCouponExhausted
		}
		if !coupon.CanIssue(now) {
			return domain.ErrCouponNotIssuable
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE coupons
			SET issued_count = issued_count + 1,
			    status = CASE WHEN issued_count + 1 >= max_issuance THEN $2 ELSE status END
			WHERE id = $1
		`, couponID, string(domain.CouponStatusSoldOut)); err != nil {
			if isCheckViolation(err) {
				return domain.ErrCouponExhausted
			}
			return fmt.Errorf("increment issued count: %w", err)
		}

		issued = domain.NewUserCoupon(userID, coupon, now.UTC())
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO user_coupons (user_id, coupon_id, discount_minor, status, issued_at)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, issued.UserID, issued.CouponID, issued.DiscountMinor, string(issued.Status), issued.IssuedAt).Scan(&issued.ID); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCouponAlreadyIssued
			}
			return fmt.Errorf("insert user coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.UserCoupon{}, err
	}
	return issued, nil
}

// UserCoupons возвращает представление хранилища как UserCouponRepository.
func (r *CouponRepository) UserCoupons() domain.UserCouponRepository {
	return userCouponRepository{db: r.db}
}

type userCouponRepository struct {
	db *sql.DB
}

func (r userCouponRepository) Get(ctx context.Context, id int64) (domain.UserCoupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	uc, err := scanUserCoupon(r.db.QueryRowContext(ctx, `SELECT `+userCouponColumns+` FROM user_coupons WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserCoupon{}, domain.ErrUserCouponNotFound
	}
	if err != nil {
		return domain.UserCoupon{}, fmt.Errorf("select user coupon: %w", err)
	}
	return uc, nil
}

func (r userCouponRepository) FindByUserAndCoupon(ctx context.Context, userID, couponID int64) (domain.UserCoupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	uc, err := scanUserCoupon(r.db.QueryRowContext(ctx, `
		SELECT `+userCouponColumns+` FROM user_coupons WHERE user_id = $1 AND coupon_id = $2
	`, userID, couponID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserCoupon{}, domain.ErrUserCouponNotFound
	}
	if err != nil {
		return domain.UserCoupon{}, fmt.Errorf("find user coupon: %w", err)
	}
	return uc, nil
}

func (r userCouponRepository) ListByUser(ctx context.Context, userID int64) ([]domain.UserCoupon, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+userCouponColumns+` FROM user_coupons WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user coupons: %w", err)
	}
	defer rows.Close()

	result := make([]domain.UserCoupon, 0)
	for rows.Next() {
		uc, err := scanUserCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user coupon: %w", err)
		}
		result = append(result, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user coupons: %w", err)
	}
	return result, nil
}

// Use выполняет переход AVAILABLE → USED условным UPDATE; при промахе
// перечитывает строку, чтобы вернуть точную причину отказа.
func (r userCouponRepository) Use(ctx context.Context, id, userID int64, now time.Time) (domain.UserCoupon, error) {
	opCtx, cancel := opContext(ctx)
	defer cancel()

	uc, err := scanUserCoupon(r.db.QueryRowContext(opCtx, `
		UPDATE user_coupons
		SET status = $3, used_at = $4
		WHERE id = $1 AND user_id = $2 AND status = $5
		RETURNING `+userCouponColumns,
		id, userID, string(domain.UserCouponStatusUsed), now.UTC(), string(domain.UserCouponStatusAvailable),
	))
	if err == nil {
		return uc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.UserCoupon{}, fmt.Errorf("use user coupon: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.UserCoupon{}, err
	}
	if current.UserID != userID {
		return domain.UserCoupon{}, domain.ErrUserCouponOwnership
	}
	return domain.UserCoupon{}, domain.ErrUserCouponNotAvailable
}

func (r userCouponRepository) Restore(ctx context.Context, id int64) (bool, error) {
	opCtx, cancel := opContext(ctx)
	defer cancel()

	res, err := r.db.ExecContext(opCtx, `
		UPDATE user_coupons SET status = $2, used_at = NULL
		WHERE id = $1 AND status = $3
	`, id, string(domain.UserCouponStatusAvailable), string(domain.UserCouponStatusUsed))
	if err != nil {
		return false, fmt.Errorf("restore user coupon: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		coupon         domain.Coupon
		status         string
		validFrom, vTo sql.NullTime
	)
	if err := row.Scan(
		&coupon.ID, &coupon.Name, &coupon.DiscountMinor, &coupon.MaxIssuance,
		&coupon.IssuedCount, &validFrom, &vTo, &status,
	); err != nil {
		return domain.Coupon{}, err
	}
	coupon.ValidFrom = timeFromNull(validFrom)
	coupon.ValidTo = timeFromNull(vTo)
	coupon.Status = domain.CouponStatus(status)
	return coupon, nil
}

func scanUserCoupon(row rowScanner) (domain.UserCoupon, error) {
	var (
		uc     domain.UserCoupon
		status string
		usedAt sql.NullTime
	)
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.DiscountMinor, &status, &uc.IssuedAt, &usedAt); err != nil {
		return domain.UserCoupon{}, err
	}
	uc.Status = domain.UserCouponStatus(status)
	uc.IssuedAt = uc.IssuedAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		uc.UsedAt = &t
	}
	return uc, nil
}

var (
	_ domain.CouponRepository     = (*CouponRepository)(nil)
	_ domain.UserCouponRepository = userCouponRepository{}
)
