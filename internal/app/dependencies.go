package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/health"
	"github.com/vladislavdragonenkov/flashsale/internal/service/outbox"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/postgres"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/redisstore"
)

// OutboxStore: outbox с очисткой отправленных записей.
type OutboxStore interface {
	domain.OutboxRepository
	outbox.SentPurger
}

// Dependencies: хранилища, общие для всех компонентов процесса.
type Dependencies struct {
	Coupons     domain.CouponRepository
	UserCoupons domain.UserCouponRepository
	Products    domain.ProductRepository
	Balances    domain.BalanceRepository
	Orders      domain.OrderRepository
	Outbox      OutboxStore
	Journal     domain.JournalRepository

	Coordination *redisstore.Store

	Checkers map[string]health.Checker
	closers  []func() error
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// initRuntimeDependencies открывает хранилище записей и хранилище координации.
// При ошибке всё, что успело открыться, закрывается.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := &Dependencies{Checkers: make(map[string]health.Checker)}

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		_ = deps.Close()
		return nil, err
	}
	if err := initCoordination(ctx, cfg, deps, logger); err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *Dependencies, logger *log.Entry) error {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(string(cfg.StorageDriver))))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		coupons := memory.NewCouponRepository()
		deps.Coupons = coupons
		deps.UserCoupons = coupons.UserCoupons()
		deps.Products = memory.NewProductRepository()
		deps.Balances = memory.NewBalanceRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Journal = memory.NewJournalRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		deps.onClose(store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}

		coupons := postgres.NewCouponRepository(store)
		deps.Coupons = coupons
		deps.UserCoupons = coupons.UserCoupons()
		deps.Products = postgres.NewProductRepository(store)
		deps.Balances = postgres.NewBalanceRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Journal = postgres.NewJournalRepository(store)
		deps.Checkers["postgres"] = health.NewChecker("postgres", store.Ping)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initCoordination(ctx context.Context, cfg Config, deps *Dependencies, logger *log.Entry) error {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		deps.onClose(func() error {
			mr.Close()
			return nil
		})
		store := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		deps.onClose(store.Close)
		deps.Coordination = store
		deps.Checkers["redis"] = health.NewChecker("redis", store.Ping)
		logger.WithField("addr", mr.Addr()).Warn("redis address not set, using embedded miniredis")
		return nil
	}

	store, err := redisstore.Open(ctx, redisstore.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open redis: %w", err)
	}
	deps.onClose(store.Close)
	deps.Coordination = store
	deps.Checkers["redis"] = health.NewChecker("redis", store.Ping)
	logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	return nil
}
