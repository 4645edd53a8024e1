package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/redisstore"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(redisstore.New(client), 5*time.Millisecond, nil), mr
}

func TestLocker_AcquireRelease(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "lock:order:user:1", 10*time.Millisecond, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, mr.TTL("lock:order:user:1"))

	_, err = locker.Acquire(ctx, "lock:order:user:1", 20*time.Millisecond, 30*time.Second)
	require.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, lease.Release(ctx))
	require.False(t, mr.Exists("lock:order:user:1"))

	_, err = locker.Acquire(ctx, "lock:order:user:1", 10*time.Millisecond, 30*time.Second)
	require.NoError(t, err)
}

func TestLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k", 0, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := locker.Acquire(ctx, "k", 0, time.Minute)
	require.NoError(t, err)

	require.Error(t, lease.Release(ctx), "expired lease must not release the new owner")
	require.True(t, mr.Exists("k"))
	require.NoError(t, other.Release(ctx))
}

func TestLocker_WithLockSerialises(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "serial", 5*time.Second, 5*time.Second, func(context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, maxSeen.Load())
}
