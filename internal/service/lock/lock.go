package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const defaultRetryInterval = 50 * time.Millisecond

// Locker: распределённая блокировка на SET NX PX с освобождением по токену.
type Locker struct {
	store         domain.KeyValueStore
	retryInterval time.Duration
	logger        *log.Entry
}

// New создаёт Locker. retryInterval <= 0 заменяется значением по умолчанию.
func New(store domain.KeyValueStore, retryInterval time.Duration, logger *log.Entry) *Locker {
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	if logger == nil {
		logger = log.WithField("component", "lock")
	}
	return &Locker{store: store, retryInterval: retryInterval, logger: logger}
}

// Lease: захваченная блокировка.
type Lease struct {
	store domain.KeyValueStore
	key   string
	token string
}

// Acquire пытается захватить key в течение wait; блокировка истекает через hold.
func (l *Locker) Acquire(ctx context.Context, key string, wait, hold time.Duration) (*Lease, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, hold)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lease{store: l.store, key: key, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

// Release снимает блокировку, только если она всё ещё наша.
func (l *Lease) Release(ctx context.Context) error {
	released, err := l.store.DeleteIfEquals(ctx, l.key, l.token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if !released {
		return fmt.Errorf("release lock %s: lease expired", l.key)
	}
	return nil
}

// Key возвращает ключ блокировки.
func (l *Lease) Key() string {
	return l.key
}

// WithLock выполняет fn под блокировкой. Ошибка освобождения только логируется.
func (l *Locker) WithLock(ctx context.Context, key string, wait, hold time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, wait, hold)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("failed to release lock")
		}
	}()
	return fn(ctx)
}
