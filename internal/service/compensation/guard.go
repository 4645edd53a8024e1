package compensation

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const guardTTL = 24 * time.Hour

// Виды компенсаций, входящие в ключ защиты.
const (
	KindStock   = "stock"
	KindCoupon  = "coupon"
	KindBalance = "balance"
)

// Guard гарантирует, что компенсация саги для ресурса выполняется не более одного раза.
type Guard struct {
	store domain.KeyValueStore
}

// NewGuard создаёт защиту поверх хранилища координации.
func NewGuard(store domain.KeyValueStore) *Guard {
	return &Guard{store: store}
}

// Key: saga:compensated:{sagaId}:{kind}:{id}.
func Key(sagaID, kind string, id int64) string {
	return fmt.Sprintf("saga:compensated:%s:%s:%d", sagaID, kind, id)
}

// Once возвращает true только для первого вызова с данной тройкой.
func (g *Guard) Once(ctx context.Context, sagaID, kind string, id int64) (bool, error) {
	return g.store.SetNX(ctx, Key(sagaID, kind, id), time.Now().UTC().Format(time.RFC3339), guardTTL)
}

// Release снимает отметку, чтобы неудавшуюся компенсацию можно было повторить.
func (g *Guard) Release(ctx context.Context, sagaID, kind string, id int64) error {
	return g.store.Delete(ctx, Key(sagaID, kind, id))
}
