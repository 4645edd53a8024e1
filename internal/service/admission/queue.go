package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Queue: справедливая FIFO-очередь ожидания купона.
type Queue struct {
	store domain.CoordinationStore
	now   func() time.Time
}

// NewQueue создаёт очередь поверх хранилища координации.
func NewQueue(store domain.CoordinationStore) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue ставит пользователя в очередь; false, если он уже в ней.
func (q *Queue) Enqueue(ctx context.Context, couponID, userID int64) (bool, error) {
	key := QueueKey(couponID)

	_, queued, err := q.store.SortedScore(ctx, key, member(userID))
	if err != nil {
		return false, err
	}
	if queued {
		return false, nil
	}

	seq, err := q.store.Incr(ctx, queueSeqKey(couponID))
	if err != nil {
		return false, err
	}
	added, err := q.store.SortedAddNX(ctx, key, member(userID), queueScore(q.now(), seq))
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	if err := q.store.Expire(ctx, key, queueTTL); err != nil {
		return true, err
	}
	if err := q.store.Expire(ctx, queueSeqKey(couponID), queueTTL); err != nil {
		return true, err
	}
	return true, nil
}

// queueScore: миллисекунды постановки, умноженные на 1000, плюс номер заявки купона.
// Заявки одной миллисекунды упорядочены по номеру, а не по user id.
// Порядок строгий, пока на купон приходится не больше 1000 заявок в миллисекунду.
func queueScore(at time.Time, seq int64) float64 {
	return float64(at.UnixMilli()*queueSeqSpan + seq%queueSeqSpan)
}

// DequeueOldest извлекает пользователя с наименьшим временем постановки.
func (q *Queue) DequeueOldest(ctx context.Context, couponID int64) (int64, bool, error) {
	popped, ok, err := q.store.SortedPopMin(ctx, QueueKey(couponID))
	if err != nil || !ok {
		return 0, false, err
	}
	userID, err := strconv.ParseInt(popped.Member, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode queue member %q: %w", popped.Member, err)
	}
	return userID, true, nil
}

// Position возвращает позицию пользователя, начиная с 1.
func (q *Queue) Position(ctx context.Context, couponID, userID int64) (int64, bool, error) {
	rank, ok, err := q.store.SortedRank(ctx, QueueKey(couponID), member(userID))
	if err != nil || !ok {
		return 0, false, err
	}
	return rank + 1, true, nil
}

// Size возвращает длину очереди.
func (q *Queue) Size(ctx context.Context, couponID int64) (int64, error) {
	return q.store.SortedCard(ctx, QueueKey(couponID))
}

// Remove снимает пользователя с очереди (явная отмена).
func (q *Queue) Remove(ctx context.Context, couponID, userID int64) (bool, error) {
	return q.store.SortedRemove(ctx, QueueKey(couponID), member(userID))
}

// ActiveCoupons возвращает купоны, для которых существует очередь.
func (q *Queue) ActiveCoupons(ctx context.Context) ([]int64, error) {
	keys, err := q.store.ScanKeys(ctx, queueKeyPattern)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		if id, ok := couponFromQueueKey(key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
