package domain

import (
	"context"
	"time"
)

// CouponRepository: хранилище купонов (источник истины для IssuedCount).
type CouponRepository interface {
	// Create сохраняет новый купон и возвращает его с присвоенным ID.
	Create(ctx context.Context, coupon Coupon) (Coupon, error)
	// Get возвращает купон или ErrCouponNotFound.
	Get(ctx context.Context, id int64) (Coupon, error)
	// Issue атомарно увеличивает IssuedCount (только если купон можно выдать) и создаёт UserCoupon.
	// Возвращает ErrCouponAlreadyIssued, ErrCouponExhausted или ErrCouponNotIssuable без побочных эффектов.
	Issue(ctx context.Context, couponID, userID int64, now time.Time) (UserCoupon, error)
}

// UserCouponRepository: хранилище выданных купонов.
type UserCouponRepository interface {
	Get(ctx context.Context, id int64) (UserCoupon, error)
	FindByUserAndCoupon(ctx context.Context, userID, couponID int64) (UserCoupon, error)
	ListByUser(ctx context.Context, userID int64) ([]UserCoupon, error)
	// Use переводит купон AVAILABLE → USED одним условным обновлением.
	Use(ctx context.Context, id, userID int64, now time.Time) (UserCoupon, error)
	// Restore переводит USED → AVAILABLE; false, если купон уже доступен.
	Restore(ctx context.Context, id int64) (bool, error)
}

// ProductRepository: товары и остатки. Остаток меняется только условными обновлениями.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	// DeductStock списывает qty, только если stock >= qty.
	DeductStock(ctx context.Context, id int64, qty int64) (Product, error)
	RestoreStock(ctx context.Context, id int64, qty int64) (Product, error)
}

// BalanceRepository: счета пользователей.
type BalanceRepository interface {
	Get(ctx context.Context, userID int64) (Balance, error)
	// Charge пополняет счёт, создавая его при необходимости.
	Charge(ctx context.Context, userID, amountMinor int64) (Balance, error)
	// Deduct списывает сумму, только если на счёте достаточно средств.
	Deduct(ctx context.Context, userID, amountMinor int64) (Balance, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями. ErrOrderAlreadyExists при повторе ID.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit <= 0: без ограничения.
	ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// JournalRepository хранит ход выполнения саг.
type JournalRepository interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, sagaID string) ([]JournalEntry, error)
}

// SetStore: атомарные операции над множествами.
type SetStore interface {
	SetAdd(ctx context.Context, key, member string) (bool, error)
	SetCard(ctx context.Context, key string) (int64, error)
	SetRemove(ctx context.Context, key, member string) (bool, error)
	SetIsMember(ctx context.Context, key, member string) (bool, error)
}

// ScoredMember: элемент отсортированного множества.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore: операции над отсортированными множествами.
type SortedSetStore interface {
	// SortedAddNX добавляет элемент, только если его ещё нет.
	SortedAddNX(ctx context.Context, key, member string, score float64) (bool, error)
	SortedScore(ctx context.Context, key, member string) (float64, bool, error)
	SortedPopMin(ctx context.Context, key string) (ScoredMember, bool, error)
	SortedRank(ctx context.Context, key, member string) (int64, bool, error)
	SortedCard(ctx context.Context, key string) (int64, error)
	SortedRemove(ctx context.Context, key, member string) (bool, error)
	SortedIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)
	SortedUnionStore(ctx context.Context, dest string, keys ...string) (int64, error)
	SortedRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	SortedRevRank(ctx context.Context, key, member string) (int64, bool, error)
}

// HashStore: операции над хешами.
type HashStore interface {
	HashSet(ctx context.Context, key string, fields map[string]string) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
}

// KeyValueStore: строковые значения, TTL и блокировки.
type KeyValueStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	// SetNX записывает значение, только если ключа нет.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DeleteIfEquals атомарно удаляет ключ, если его значение равно value.
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr атомарно увеличивает счётчик и возвращает новое значение.
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// CoordinationStore описывает быстрое общее хранилище: кеш и основа конкурентного контроля.
type CoordinationStore interface {
	SetStore
	SortedSetStore
	HashStore
	KeyValueStore
}

// SagaStep задаёт константы шагов для метрик/логов.
type SagaStep string

const (
	SagaStepValidate SagaStep = "validate"
	SagaStepStock    SagaStep = "stock"
	SagaStepCoupon   SagaStep = "coupon"
	SagaStepBalance  SagaStep = "balance"
	SagaStepPersist  SagaStep = "persist"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// SagaPhase: итоговое состояние саги, видимое снаружи.
type SagaPhase string

const (
	SagaPhaseAccepted  SagaPhase = "ACCEPTED"
	SagaPhaseCompleted SagaPhase = "COMPLETED"
	SagaPhaseFailed    SagaPhase = "FAILED"
)

// JournalEntry: одна запись журнала саги.
type JournalEntry struct {
	SagaID   string
	Type     string
	Step     SagaStep
	OrderID  string
	Reason   string
	Occurred time.Time
}
