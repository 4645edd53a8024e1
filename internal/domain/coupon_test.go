package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

func TestCouponCanIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := domain.Coupon{
		ID:          1,
		MaxIssuance: 10,
		IssuedCount: 3,
		ValidFrom:   now.Add(-time.Hour),
		ValidTo:     now.Add(time.Hour),
		Status:      domain.CouponStatusActive,
	}

	cases := []struct {
		name string
		mut  func(c *domain.Coupon)
		want bool
	}{
		{name: "active in window", mut: func(*domain.Coupon) {}, want: true},
		{name: "inactive", mut: func(c *domain.Coupon) { c.Status = domain.CouponStatusInactive }, want: false},
		{name: "sold out by count", mut: func(c *domain.Coupon) { c.IssuedCount = 10 }, want: false},
		{name: "not started", mut: func(c *domain.Coupon) { c.ValidFrom = now.Add(time.Minute) }, want: false},
		{name: "expired window", mut: func(c *domain.Coupon) { c.ValidTo = now.Add(-time.Minute) }, want: false},
		{name: "open window", mut: func(c *domain.Coupon) { c.ValidFrom, c.ValidTo = time.Time{}, time.Time{} }, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mut(&c)
			if got := c.CanIssue(now); got != tc.want {
				t.Fatalf("CanIssue() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUserCouponUseAndRestore(t *testing.T) {
	now := time.Now().UTC()
	uc := domain.NewUserCoupon(5, domain.Coupon{ID: 9, DiscountMinor: 500}, now)

	if uc.Status != domain.UserCouponStatusAvailable || uc.UsedAt != nil {
		t.Fatalf("unexpected fresh user coupon: %+v", uc)
	}
	if uc.DiscountMinor != 500 {
		t.Fatalf("discount should be snapshotted, got %d", uc.DiscountMinor)
	}

	if err := uc.Use(6, now); !errors.Is(err, domain.ErrUserCouponOwnership) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if err := uc.Use(5, now); err != nil {
		t.Fatalf("use: %v", err)
	}
	if uc.Status != domain.UserCouponStatusUsed || uc.UsedAt == nil {
		t.Fatalf("expected USED with usedAt, got %+v", uc)
	}
	if err := uc.Use(5, now); !errors.Is(err, domain.ErrUserCouponNotAvailable) {
		t.Fatalf("expected not available on second use, got %v", err)
	}

	if !uc.Restore() {
		t.Fatal("expected restore to change state")
	}
	if uc.Status != domain.UserCouponStatusAvailable || uc.UsedAt != nil {
		t.Fatalf("expected AVAILABLE without usedAt, got %+v", uc)
	}
	if uc.Restore() {
		t.Fatal("second restore must be a no-op")
	}
}
