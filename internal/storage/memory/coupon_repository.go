package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type userCouponKey struct {
	userID   int64
	couponID int64
}

// CouponRepository хранит купоны и выданные купоны под одним мьютексом,
// поэтому Issue атомарен так же, как транзакция в Postgres.
type CouponRepository struct {
	mu          sync.RWMutex
	coupons     map[int64]domain.Coupon
	userCoupons map[int64]domain.UserCoupon
	byUser      map[userCouponKey]int64
	nextCoupon  int64
	nextUser    int64
}

// NewCouponRepository создаёт in-memory хранилище купонов.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		coupons:     make(map[int64]domain.Coupon),
		userCoupons: make(map[int64]domain.UserCoupon),
		byUser:      make(map[userCouponKey]int64),
	}
}

// Create сохраняет купон; нулевой ID заменяется следующим по порядку.
func (r *CouponRepository) Create(_ context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if coupon.ID == 0 {
		r.nextCoupon++
		coupon.ID = r.nextCoupon
	} else if coupon.ID > r.nextCoupon {
		r.nextCoupon = coupon.ID
	}
	if coupon.Status == "" {
		coupon.Status = domain.CouponStatusActive
	}
	r.coupons[coupon.ID] = coupon
	return coupon, nil
}

// Get возвращает купон или ErrCouponNotFound.
func (r *CouponRepository) Get(_ context.Context, id int64) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.coupons[id]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// Issue увеличивает IssuedCount и создаёт UserCoupon за одну критическую секцию.
func (r *CouponRepository) Issue(_ context.Context, couponID, userID int64, now time.Time) (domain.UserCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[couponID]
	if !ok {
		return domain.UserCoupon{}, domain.ErrCouponNotFound
	}
	if _, dup := r.byUser[userCouponKey{userID: userID, couponID: couponID}]; dup {
		return domain.UserCoupon{}, domain.ErrCouponAlreadyIssued
	}
	if coupon.IssuedCount >= coupon.MaxIssuance {
		return domain.UserCoupon{}, domain.ErrCouponExhausted
	}
	if !coupon.CanIssue(now) {
		return domain.UserCoupon{}, domain.ErrCouponNotIssuable
	}

	coupon.IssuedCount++
	if coupon.IssuedCount >= coupon.MaxIssuance {
		coupon.Status = domain.CouponStatusSoldOut
	}
	r.coupons[couponID] = coupon

	r.nextUser++
	uc := domain.NewUserCoupon(userID, coupon, now)
	uc.ID = r.nextUser
	r.userCoupons[uc.ID] = uc
	r.byUser[userCouponKey{userID: userID, couponID: couponID}] = uc.ID
	return uc, nil
}

// UserCoupon возвращает выданный купон по ID.
func (r *CouponRepository) UserCoupon(_ context.Context, id int64) (domain.UserCoupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uc, ok := r.userCoupons[id]
	if !ok {
		return domain.UserCoupon{}, domain.ErrUserCouponNotFound
	}
	return uc, nil
}

// UserCoupons возвращает представление хранилища как UserCouponRepository.
func (r *CouponRepository) UserCoupons() domain.UserCouponRepository {
	return userCouponView{repo: r}
}

// userCouponView даёт доступ к выданным купонам через тот же мьютекс.
type userCouponView struct {
	repo *CouponRepository
}

func (v userCouponView) Get(ctx context.Context, id int64) (domain.UserCoupon, error) {
	return v.repo.UserCoupon(ctx, id)
}

func (v userCouponView) FindByUserAndCoupon(_ context.Context, userID, couponID int64) (domain.UserCoupon, error) {
	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()

	id, ok := v.repo.byUser[userCouponKey{userID: userID, couponID: couponID}]
	if !ok {
		return domain.UserCoupon{}, domain.ErrUserCouponNotFound
	}
	return v.repo.userCoupons[id], nil
}

func (v userCouponView) ListByUser(_ context.Context, userID int64) ([]domain.UserCoupon, error) {
	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()

	result := make([]domain.UserCoupon, 0)
	for _, uc := range v.repo.userCoupons {
		if uc.UserID == userID {
			result = append(result, uc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Use переводит купон в USED, только если он AVAILABLE и принадлежит userID.
func (v userCouponView) Use(_ context.Context, id, userID int64, now time.Time) (domain.UserCoupon, error) {
	v.repo.mu.Lock()
	defer v.repo.mu.Unlock()

	uc, ok := v.repo.userCoupons[id]
	if !ok {
		return domain.UserCoupon{}, domain.ErrUserCouponNotFound
	}
	if err := uc.Use(userID, now); err != nil {
		return domain.UserCoupon{}, err
	}
	v.repo.userCoupons[id] = uc
	return uc, nil
}

// Restore возвращает купон в AVAILABLE; false, если он уже доступен.
func (v userCouponView) Restore(_ context.Context, id int64) (bool, error) {
	v.repo.mu.Lock()
	defer v.repo.mu.Unlock()

	uc, ok := v.repo.userCoupons[id]
	if !ok {
		return false, domain.ErrUserCouponNotFound
	}
	changed := uc.Restore()
	v.repo.userCoupons[id] = uc
	return changed, nil
}

var (
	_ domain.CouponRepository     = (*CouponRepository)(nil)
	_ domain.UserCouponRepository = userCouponView{}
)
