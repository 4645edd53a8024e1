package coupon

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Service: операции над купонами вне потока выдачи.
type Service struct {
	coupons     domain.CouponRepository
	userCoupons domain.UserCouponRepository
	logger      *log.Entry
	now         func() time.Time
}

// NewService создаёт купонный сервис.
func NewService(coupons domain.CouponRepository, userCoupons domain.UserCouponRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "coupon")
	}
	return &Service{coupons: coupons, userCoupons: userCoupons, logger: logger, now: time.Now}
}

// Create заводит новый купон.
func (s *Service) Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if coupon.MaxIssuance <= 0 || coupon.DiscountMinor < 0 {
		return domain.Coupon{}, domain.ErrAmountInvalid
	}
	if coupon.Status == "" {
		coupon.Status = domain.CouponStatusActive
	}
	coupon.IssuedCount = 0
	return s.coupons.Create(ctx, coupon)
}

// Get возвращает купон.
func (s *Service) Get(ctx context.Context, couponID int64) (domain.Coupon, error) {
	return s.coupons.Get(ctx, couponID)
}

// ListUserCoupons возвращает купоны пользователя.
func (s *Service) ListUserCoupons(ctx context.Context, userID int64) ([]domain.UserCoupon, error) {
	return s.userCoupons.ListByUser(ctx, userID)
}

// Use применяет купон пользователя к заказу.
func (s *Service) Use(ctx context.Context, userID, userCouponID int64) (domain.UserCoupon, error) {
	uc, err := s.userCoupons.Use(ctx, userCouponID, userID, s.now().UTC())
	if err != nil {
		return domain.UserCoupon{}, err
	}
	s.logger.WithFields(log.Fields{"user_id": userID, "user_coupon_id": userCouponID}).Debug("coupon used")
	return uc, nil
}

// Restore возвращает купон в AVAILABLE. Уже доступный купон не считается ошибкой.
func (s *Service) Restore(ctx context.Context, userCouponID int64) error {
	changed, err := s.userCoupons.Restore(ctx, userCouponID)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.WithField("user_coupon_id", userCouponID).Info("coupon already available, nothing to restore")
	}
	return nil
}
