package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Демонстрационные данные для локального запуска и cmd/loadtest.
const (
	demoCouponMaxIssuance = 100
	demoCouponDiscount    = 1_000
	demoFirstUserID       = 1001
	demoUsers             = 200
	demoBalanceMinor      = 1_000_000
	demoProductStock      = 100
)

var demoProducts = []domain.Product{
	{Name: "mechanical keyboard", PriceMinor: 89_000, Stock: demoProductStock},
	{Name: "wireless mouse", PriceMinor: 35_000, Stock: demoProductStock},
	{Name: "usb-c hub", PriceMinor: 27_000, Stock: demoProductStock},
}

// SeedResult: идентификаторы созданных демонстрационных данных.
type SeedResult struct {
	CouponID   int64
	ProductIDs []int64
	Users      int
}

// seedDemo создаёт купон на demoCouponMaxIssuance штук, товары и счета
// пользователей demoFirstUserID..demoFirstUserID+demoUsers-1.
func seedDemo(ctx context.Context, deps *Dependencies, now time.Time, logger *log.Entry) (SeedResult, error) {
	var result SeedResult

	c, err := deps.Coupons.Create(ctx, domain.Coupon{
		Name:          "flash sale",
		DiscountMinor: demoCouponDiscount,
		MaxIssuance:   demoCouponMaxIssuance,
		ValidFrom:     now.Add(-time.Minute),
		ValidTo:       now.Add(24 * time.Hour),
		Status:        domain.CouponStatusActive,
	})
	if err != nil {
		return result, fmt.Errorf("seed coupon: %w", err)
	}
	result.CouponID = c.ID

	for _, p := range demoProducts {
		created, err := deps.Products.Create(ctx, p)
		if err != nil {
			return result, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
		result.ProductIDs = append(result.ProductIDs, created.ID)
	}

	for i := 0; i < demoUsers; i++ {
		if _, err := deps.Balances.Charge(ctx, demoFirstUserID+int64(i), demoBalanceMinor); err != nil {
			return result, fmt.Errorf("seed balance: %w", err)
		}
		result.Users++
	}

	logger.WithFields(log.Fields{
		"coupon_id":   result.CouponID,
		"product_ids": result.ProductIDs,
		"users":       result.Users,
	}).Info("demo data seeded")
	return result, nil
}
