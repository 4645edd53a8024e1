package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const (
	defaultConnTimeout  = 5 * time.Second
	defaultPoolSize     = 50
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 2 * time.Second
	scanBatch           = 100
)

// compareAndDelete снимает ключ, только если значение совпадает с ожидаемым токеном.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options задаёт параметры подключения к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store реализует domain.CoordinationStore поверх Redis.
type Store struct {
	client redis.UniversalClient
}

// Open подключается к Redis и проверяет доступность сервера.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     defaultPoolSize,
		DialTimeout:  defaultConnTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	store := &Store{client: client}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// New оборачивает уже созданный клиент (используется в тестах).
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrCoordinationUnavailable, op, key, err)
}

func (s *Store) SetAdd(ctx context.Context, key, member string) (bool, error) {
	added, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("sadd", key, err)
	}
	return added == 1, nil
}

func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	size, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, unavailable("scard", key, err)
	}
	return size, nil
}

func (s *Store) SetRemove(ctx context.Context, key, member string) (bool, error) {
	removed, err := s.client.SRem(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("srem", key, err)
	}
	return removed == 1, nil
}

func (s *Store) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("sismember", key, err)
	}
	return ok, nil
}

func (s *Store) SortedAddNX(ctx context.Context, key, member string, score float64) (bool, error) {
	added, err := s.client.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, unavailable("zadd", key, err)
	}
	return added == 1, nil
}

func (s *Store) SortedScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("zscore", key, err)
	}
	return score, true, nil
}

func (s *Store) SortedPopMin(ctx context.Context, key string) (domain.ScoredMember, bool, error) {
	popped, err := s.client.ZPopMin(ctx, key, 1).Result()
	if err != nil {
		return domain.ScoredMember{}, false, unavailable("zpopmin", key, err)
	}
	if len(popped) == 0 {
		return domain.ScoredMember{}, false, nil
	}
	return toScored(popped[0]), true, nil
}

func (s *Store) SortedRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("zrank", key, err)
	}
	return rank, true, nil
}

func (s *Store) SortedRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("zrevrank", key, err)
	}
	return rank, true, nil
}

func (s *Store) SortedCard(ctx context.Context, key string) (int64, error) {
	size, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, unavailable("zcard", key, err)
	}
	return size, nil
}

func (s *Store) SortedRemove(ctx context.Context, key, member string) (bool, error) {
	removed, err := s.client.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("zrem", key, err)
	}
	return removed == 1, nil
}

func (s *Store) SortedIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	score, err := s.client.ZIncrBy(ctx, key, delta, member).Result()
	if err != nil {
		return 0, unavailable("zincrby", key, err)
	}
	return score, nil
}

func (s *Store) SortedUnionStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	size, err := s.client.ZUnionStore(ctx, dest, &redis.ZStore{Keys: keys}).Result()
	if err != nil {
		return 0, unavailable("zunionstore", dest, err)
	}
	return size, nil
}

func (s *Store) SortedRevRange(ctx context.Context, key string, start, stop int64) ([]domain.ScoredMember, error) {
	items, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, unavailable("zrevrange", key, err)
	}
	result := make([]domain.ScoredMember, 0, len(items))
	for _, item := range items {
		result = append(result, toScored(item))
	}
	return result, nil
}

func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return unavailable("hset", key, err)
	}
	return nil
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall", key, err)
	}
	return fields, nil
}

func (s *Store) HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	value, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, unavailable("hincrby", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", key, err)
	}
	return value, true, nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return ok, nil
}

func (s *Store) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	deleted, err := compareAndDelete.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, unavailable("compare-and-delete", key, err)
	}
	return deleted == 1, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable("expire", key, err)
	}
	return nil
}

// ScanKeys обходит пространство ключей курсором, не блокируя сервер как KEYS.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan", pattern, err)
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func toScored(z redis.Z) domain.ScoredMember {
	member, ok := z.Member.(string)
	if !ok {
		member = fmt.Sprint(z.Member)
	}
	return domain.ScoredMember{Member: member, Score: z.Score}
}

var _ domain.CoordinationStore = (*Store)(nil)
