package admission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// ResultStore хранит результаты заявок (последняя запись побеждает).
type ResultStore struct {
	store domain.KeyValueStore
}

// NewResultStore создаёт хранилище результатов.
func NewResultStore(store domain.KeyValueStore) *ResultStore {
	return &ResultStore{store: store}
}

// Save записывает результат с TTL.
func (r *ResultStore) Save(ctx context.Context, result domain.IssuanceResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal issuance result: %w", err)
	}
	return r.store.Set(ctx, ResultKey(result.CouponID, result.UserID), string(payload), resultTTL)
}

// Get возвращает результат, если он ещё не истёк.
func (r *ResultStore) Get(ctx context.Context, couponID, userID int64) (domain.IssuanceResult, bool, error) {
	raw, ok, err := r.store.Get(ctx, ResultKey(couponID, userID))
	if err != nil || !ok {
		return domain.IssuanceResult{}, false, err
	}
	var result domain.IssuanceResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.IssuanceResult{}, false, fmt.Errorf("decode issuance result: %w", err)
	}
	return result, true, nil
}
