// Package ranking ведёт рейтинг популярных товаров по продажам за последние дни.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

const (
	dailyPrefix     = "product:ranking:daily:"
	aggregatePrefix = "product:ranking:recent3days:"
	dateLayout      = "2006-01-02"

	windowDays   = 3
	dailyTTL     = 4 * 24 * time.Hour
	aggregateTTL = 6 * time.Hour
	lockWait     = 3 * time.Second
	lockHold     = 10 * time.Second
)

var salesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flashsale_ranking_sales_recorded_total",
	Help: "Total number of product sales recorded into the daily ranking.",
})

// Locker выполняет функцию под распределённой блокировкой.
type Locker interface {
	WithLock(ctx context.Context, key string, wait, hold time.Duration, fn func(ctx context.Context) error) error
}

// Entry: позиция товара в рейтинге.
type Entry struct {
	ProductID int64
	Sales     int64
}

// Service ведёт дневные рейтинги и собирает из них сводный рейтинг за три дня.
type Service struct {
	store  domain.CoordinationStore
	locker Locker
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис рейтинга.
func NewService(store domain.CoordinationStore, locker Locker, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "ranking")
	}
	return &Service{
		store:  store,
		locker: locker,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DailyKey: product:ranking:daily:{YYYY-MM-DD}.
func DailyKey(day time.Time) string {
	return dailyPrefix + day.UTC().Format(dateLayout)
}

// AggregateKey: product:ranking:recent3days:{YYYY-MM-DD}.
func AggregateKey(day time.Time) string {
	return aggregatePrefix + day.UTC().Format(dateLayout)
}

// RecordSale добавляет продажу в рейтинг дня, когда она совершена.
func (s *Service) RecordSale(ctx context.Context, productID int64, qty int32, at time.Time) error {
	if productID <= 0 {
		return domain.ErrProductIDInvalid
	}
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	if at.IsZero() {
		at = s.now()
	}

	key := DailyKey(at)
	if _, err := s.store.SortedIncrBy(ctx, key, strconv.FormatInt(productID, 10), float64(qty)); err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	if err := s.store.Expire(ctx, key, dailyTTL); err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	salesRecorded.Inc()
	return nil
}

// TopProducts возвращает до limit самых продаваемых товаров за три дня.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	key, err := s.ensureAggregate(ctx)
	if err != nil {
		return nil, err
	}

	members, err := s.store.SortedRevRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			s.logger.WithField("member", m.Member).Warn("skipping malformed ranking member")
			continue
		}
		entries = append(entries, Entry{ProductID: id, Sales: int64(m.Score)})
	}
	return entries, nil
}

// Rank возвращает место товара (с нуля) и продажи; ok=false, если продаж не было.
func (s *Service) Rank(ctx context.Context, productID int64) (rank int64, sales int64, ok bool, err error) {
	key, err := s.ensureAggregate(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	member := strconv.FormatInt(productID, 10)
	rank, ok, err = s.store.SortedRevRank(ctx, key, member)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	score, _, err := s.store.SortedScore(ctx, key, member)
	if err != nil {
		return 0, 0, false, err
	}
	return rank, int64(score), true, nil
}

// ensureAggregate строит сводный рейтинг один раз: проверка, блокировка, повторная проверка.
func (s *Service) ensureAggregate(ctx context.Context) (string, error) {
	today := s.now()
	key := AggregateKey(today)

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check ranking aggregate: %w", err)
	}
	if exists {
		return key, nil
	}

	err = s.locker.WithLock(ctx, "lock:ranking-aggregate:"+key, lockWait, lockHold, func(ctx context.Context) error {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		days := make([]string, 0, windowDays)
		for i := 0; i < windowDays; i++ {
			days = append(days, DailyKey(today.AddDate(0, 0, -i)))
		}
		if _, err := s.store.SortedUnionStore(ctx, key, days...); err != nil {
			return err
		}
		s.logger.WithField("key", key).Debug("ranking aggregate rebuilt")
		return s.store.Expire(ctx, key, aggregateTTL)
	})
	if err != nil {
		return "", fmt.Errorf("aggregate ranking: %w", err)
	}
	return key, nil
}

// HandleMessage разбирает сообщение product-ranking и учитывает продажу.
// Некорректное сообщение пропускается: повтор его не исправит.
func (s *Service) HandleMessage(ctx context.Context, payload []byte) error {
	var msg events.ProductRankingPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.WithError(err).Warn("skipping malformed product ranking message")
		return nil
	}
	if err := s.RecordSale(ctx, msg.ProductID, msg.Quantity, msg.OrderedAt); err != nil {
		if domain.IsValidation(err) {
			s.logger.WithError(err).WithField("order_id", msg.OrderID).Warn("skipping invalid product ranking message")
			return nil
		}
		return err
	}
	return nil
}
