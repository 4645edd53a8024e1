package admission

import (
	"context"
	"errors"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const (
	fieldID            = "id"
	fieldName          = "name"
	fieldDiscountMinor = "discountMinor"
	fieldMaxIssuance   = "maxIssuance"
	fieldIssuedCount   = "issuedCount"
	fieldValidFrom     = "validFrom"
	fieldValidTo       = "validTo"
	fieldStatus        = "status"
)

var errIncompleteCacheEntry = errors.New("incomplete coupon cache entry")

// CouponCache кеширует метаданные купонов в хеше coupon:info:{id}.
type CouponCache struct {
	store  domain.CoordinationStore
	repo   domain.CouponRepository
	logger *log.Entry
}

// NewCouponCache создаёт кеш с заполнением из репозитория при промахе.
func NewCouponCache(store domain.CoordinationStore, repo domain.CouponRepository, logger *log.Entry) *CouponCache {
	if logger == nil {
		logger = log.WithField("component", "coupon-cache")
	}
	return &CouponCache{store: store, repo: repo, logger: logger}
}

// Get возвращает купон из кеша; при промахе или сбое кеша читает репозиторий.
func (c *CouponCache) Get(ctx context.Context, couponID int64) (domain.Coupon, error) {
	fields, err := c.store.HashGetAll(ctx, InfoKey(couponID))
	if err != nil {
		c.logger.WithError(err).WithField("coupon_id", couponID).Warn("coupon cache read failed, using repository")
		return c.repo.Get(ctx, couponID)
	}
	if len(fields) > 0 {
		coupon, decodeErr := decodeCoupon(fields)
		if decodeErr == nil {
			return coupon, nil
		}
		c.logger.WithError(decodeErr).WithField("coupon_id", couponID).Debug("coupon cache entry ignored")
	}

	coupon, err := c.repo.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	if err := c.Put(ctx, coupon); err != nil {
		c.logger.WithError(err).WithField("coupon_id", couponID).Warn("failed to populate coupon cache")
	}
	return coupon, nil
}

// Put записывает купон в кеш на 24 часа.
func (c *CouponCache) Put(ctx context.Context, coupon domain.Coupon) error {
	key := InfoKey(coupon.ID)
	if err := c.store.HashSet(ctx, key, encodeCoupon(coupon)); err != nil {
		return err
	}
	return c.store.Expire(ctx, key, couponInfoTTL)
}

// IncrementIssued отражает успешную выдачу в кеше; отсутствующая запись не создаётся.
func (c *CouponCache) IncrementIssued(ctx context.Context, couponID int64) error {
	key := InfoKey(couponID)
	exists, err := c.store.Exists(ctx, key)
	if err != nil || !exists {
		return err
	}
	_, err = c.store.HashIncrBy(ctx, key, fieldIssuedCount, 1)
	return err
}

func encodeCoupon(coupon domain.Coupon) map[string]string {
	return map[string]string{
		fieldID:            strconv.FormatInt(coupon.ID, 10),
		fieldName:          coupon.Name,
		fieldDiscountMinor: strconv.FormatInt(coupon.DiscountMinor, 10),
		fieldMaxIssuance:   strconv.FormatInt(coupon.MaxIssuance, 10),
		fieldIssuedCount:   strconv.FormatInt(coupon.IssuedCount, 10),
		fieldValidFrom:     formatTime(coupon.ValidFrom),
		fieldValidTo:       formatTime(coupon.ValidTo),
		fieldStatus:        string(coupon.Status),
	}
}

func decodeCoupon(fields map[string]string) (domain.Coupon, error) {
	for _, required := range []string{fieldID, fieldMaxIssuance, fieldIssuedCount, fieldStatus} {
		if _, ok := fields[required]; !ok {
			return domain.Coupon{}, errIncompleteCacheEntry
		}
	}

	var (
		coupon domain.Coupon
		err    error
	)
	if coupon.ID, err = strconv.ParseInt(fields[fieldID], 10, 64); err != nil {
		return domain.Coupon{}, err
	}
	if coupon.DiscountMinor, err = parseOptionalInt(fields[fieldDiscountMinor]); err != nil {
		return domain.Coupon{}, err
	}
	if coupon.MaxIssuance, err = strconv.ParseInt(fields[fieldMaxIssuance], 10, 64); err != nil {
		return domain.Coupon{}, err
	}
	if coupon.IssuedCount, err = strconv.ParseInt(fields[fieldIssuedCount], 10, 64); err != nil {
		return domain.Coupon{}, err
	}
	if coupon.ValidFrom, err = parseTime(fields[fieldValidFrom]); err != nil {
		return domain.Coupon{}, err
	}
	if coupon.ValidTo, err = parseTime(fields[fieldValidTo]); err != nil {
		return domain.Coupon{}, err
	}
	coupon.Name = fields[fieldName]
	coupon.Status = domain.CouponStatus(fields[fieldStatus])
	return coupon, nil
}

func parseOptionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
