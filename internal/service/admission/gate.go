package admission

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Gate: быстрый атомарный шлюз допуска поверх множества coupon:issued:{id}.
// Счётчик купона в хранилище записи шлюз не трогает.
type Gate struct {
	store  domain.CoordinationStore
	logger *log.Entry
}

// NewGate создаёт шлюз допуска.
func NewGate(store domain.CoordinationStore, logger *log.Entry) *Gate {
	if logger == nil {
		logger = log.WithField("component", "admission-gate")
	}
	return &Gate{store: store, logger: logger}
}

// TryAdmit добавляет пользователя в множество выданных и проверяет лимит.
// Ошибка хранилища даёт AdmissionIndeterminate: решение остаётся за транзакционным путём.
func (g *Gate) TryAdmit(ctx context.Context, couponID, userID, maxCount int64) domain.AdmissionResult {
	result := g.tryAdmit(ctx, couponID, userID, maxCount)
	gateDecisions.WithLabelValues(string(result)).Inc()
	return result
}

func (g *Gate) tryAdmit(ctx context.Context, couponID, userID, maxCount int64) domain.AdmissionResult {
	key := IssuedKey(couponID)
	fields := log.Fields{"coupon_id": couponID, "user_id": userID}

	added, err := g.store.SetAdd(ctx, key, member(userID))
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Warn("admission gate add failed")
		return domain.AdmissionIndeterminate
	}
	if !added {
		return domain.AdmissionAlreadyIssued
	}

	size, err := g.store.SetCard(ctx, key)
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Warn("admission gate size check failed")
		g.release(ctx, key, userID)
		return domain.AdmissionIndeterminate
	}
	if size > maxCount {
		g.release(ctx, key, userID)
		return domain.AdmissionExhausted
	}

	if err := g.store.Expire(ctx, key, issuedSetTTL); err != nil {
		g.logger.WithError(err).WithFields(fields).Warn("failed to set issued set ttl")
	}
	return domain.AdmissionAdmitted
}

func (g *Gate) release(ctx context.Context, key string, userID int64) {
	if _, err := g.store.SetRemove(ctx, key, member(userID)); err != nil {
		g.logger.WithError(err).WithField("user_id", userID).Warn("failed to release admission slot")
	}
}

// Rollback освобождает место пользователя, если авторитетная выдача не удалась.
func (g *Gate) Rollback(ctx context.Context, couponID, userID int64) error {
	_, err := g.store.SetRemove(ctx, IssuedKey(couponID), member(userID))
	return err
}

// IsIssued проверяет, допущен ли пользователь ранее.
func (g *Gate) IsIssued(ctx context.Context, couponID, userID int64) (bool, error) {
	return g.store.SetIsMember(ctx, IssuedKey(couponID), member(userID))
}

// IsExhausted: быстрая проверка перед постановкой в очередь.
func (g *Gate) IsExhausted(ctx context.Context, couponID, maxCount int64) (bool, error) {
	size, err := g.store.SetCard(ctx, IssuedKey(couponID))
	if err != nil {
		return false, err
	}
	return size >= maxCount, nil
}
