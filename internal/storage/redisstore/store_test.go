package redisstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestStore_SetOperations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	added, err := store.SetAdd(ctx, "coupon:issued:1", "10")
	require.NoError(t, err)
	require.True(t, added)

	added, err = store.SetAdd(ctx, "coupon:issued:1", "10")
	require.NoError(t, err)
	require.False(t, added, "second add of the same member must report false")

	size, err := store.SetCard(ctx, "coupon:issued:1")
	require.NoError(t, err)
	require.EqualValues(t, 1, size)

	member, err := store.SetIsMember(ctx, "coupon:issued:1", "10")
	require.NoError(t, err)
	require.True(t, member)

	removed, err := store.SetRemove(ctx, "coupon:issued:1", "10")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.SetRemove(ctx, "coupon:issued:1", "10")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestStore_SortedSetQueueOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := "coupon:queue:1"

	for i, member := range []string{"a", "b", "c"} {
		added, err := store.SortedAddNX(ctx, key, member, float64(100+i))
		require.NoError(t, err)
		require.True(t, added)
	}

	added, err := store.SortedAddNX(ctx, key, "a", 999)
	require.NoError(t, err)
	require.False(t, added, "NX must not overwrite existing score")

	score, ok, err := store.SortedScore(ctx, key, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, score)

	rank, ok, err := store.SortedRank(ctx, key, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, rank)

	_, ok, err = store.SortedRank(ctx, key, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	first, ok, err := store.SortedPopMin(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", first.Member)

	size, err := store.SortedCard(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 2, size)

	removed, err := store.SortedRemove(ctx, key, "b")
	require.NoError(t, err)
	require.True(t, removed)

	_, _, err = store.SortedPopMin(ctx, key)
	require.NoError(t, err)
	_, ok, err = store.SortedPopMin(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "empty queue pops nothing")
}

func TestStore_SortedUnionAndRevRange(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SortedIncrBy(ctx, "day:1", "p1", 3)
	require.NoError(t, err)
	_, err = store.SortedIncrBy(ctx, "day:2", "p1", 2)
	require.NoError(t, err)
	_, err = store.SortedIncrBy(ctx, "day:2", "p2", 4)
	require.NoError(t, err)

	size, err := store.SortedUnionStore(ctx, "union", "day:1", "day:2")
	require.NoError(t, err)
	require.EqualValues(t, 2, size)

	top, err := store.SortedRevRange(ctx, "union", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []domain.ScoredMember{{Member: "p1", Score: 5}, {Member: "p2", Score: 4}}, top)

	rank, ok, err := store.SortedRevRank(ctx, "union", "p2")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, rank)
}

func TestStore_HashOperations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HashSet(ctx, "coupon:info:1", map[string]string{"name": "spring", "issuedCount": "2"}))

	value, err := store.HashIncrBy(ctx, "coupon:info:1", "issuedCount", 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, value)

	fields, err := store.HashGetAll(ctx, "coupon:info:1")
	require.NoError(t, err)
	require.Equal(t, "spring", fields["name"])
	require.Equal(t, "3", fields["issuedCount"])

	empty, err := store.HashGetAll(ctx, "coupon:info:404")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStore_KeyValueAndLockPrimitives(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", value)

	ok, err := store.SetNX(ctx, "lock", "token-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.SetNX(ctx, "lock", "token-2", time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := store.DeleteIfEquals(ctx, "lock", "token-2")
	require.NoError(t, err)
	require.False(t, deleted, "foreign token must not release the lock")

	deleted, err = store.DeleteIfEquals(ctx, "lock", "token-1")
	require.NoError(t, err)
	require.True(t, deleted)

	exists, err := store.Exists(ctx, "lock")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Expire(ctx, "k", 10*time.Second))
	require.Equal(t, 10*time.Second, mr.TTL("k"))
	mr.FastForward(11 * time.Second)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_ScanKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"coupon:queue:1", "coupon:queue:2", "coupon:issued:1"} {
		_, err := store.SortedAddNX(ctx, key, "m", 1)
		require.NoError(t, err)
	}

	keys, err := store.ScanKeys(ctx, "coupon:queue:*")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"coupon:queue:1", "coupon:queue:2"}, keys)
}

func TestStore_UnavailableIsClassified(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.SetAdd(context.Background(), "coupon:issued:1", "1")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrCoordinationUnavailable))
	require.Error(t, store.Ping(context.Background()))
}

func TestStore_IncrAndDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "seq")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.NoError(t, store.Delete(ctx, "seq"))
	require.False(t, mr.Exists("seq"))
	require.NoError(t, store.Delete(ctx, "seq"), "deleting a missing key is not an error")

	got, err := store.Incr(ctx, "seq")
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}
