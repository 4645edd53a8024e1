package app

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/flashsale/internal/health"
)

func TestInitRuntimeDependencies_MemoryWithEmbeddedRedis(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	defer func() { require.NoError(t, deps.Close()) }()

	require.NotNil(t, deps.Coupons)
	require.NotNil(t, deps.UserCoupons)
	require.NotNil(t, deps.Products)
	require.NotNil(t, deps.Balances)
	require.NotNil(t, deps.Orders)
	require.NotNil(t, deps.Outbox)
	require.NotNil(t, deps.Journal)
	require.NotNil(t, deps.Coordination)

	require.Contains(t, deps.Checkers, "redis")
	require.NotContains(t, deps.Checkers, "postgres")
	require.Equal(t, healthcheck.StatusHealthy, deps.Checkers["redis"].Check(context.Background()).Status)
}

func TestInitRuntimeDependencies_EmptyDriverDefaultsToMemory(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), Config{}, log.WithField("test", "default-driver"))
	require.NoError(t, err)
	defer func() { _ = deps.Close() }()
	require.NotNil(t, deps.Orders)
}

func TestInitRuntimeDependencies_ExternalRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     mr.Addr(),
	}, log.WithField("test", "external-redis"))
	require.NoError(t, err)
	defer func() { _ = deps.Close() }()

	_, err = deps.Coordination.SetAdd(context.Background(), "coupon:issued:1", "7")
	require.NoError(t, err)
	require.True(t, mr.Exists("coupon:issued:1"))

	mr.Close()
	check := deps.Checkers["redis"].Check(context.Background())
	require.Equal(t, healthcheck.StatusUnhealthy, check.Status)
	require.NotEmpty(t, check.Message)
}

func TestInitRuntimeDependencies_UnreachableRedis(t *testing.T) {
	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     "127.0.0.1:1",
	}, log.WithField("test", "unreachable-redis"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "open redis")
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "dsn is required")
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported storage driver")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.Close() }()

	require.Contains(t, deps.Checkers, "postgres")
	require.Equal(t, healthcheck.StatusHealthy, deps.Checkers["postgres"].Check(context.Background()).Status)
}

func TestDependenciesClose_ReverseOrderAndJoinedErrors(t *testing.T) {
	var order []string
	deps := &Dependencies{}
	deps.onClose(func() error { order = append(order, "first"); return nil })
	deps.onClose(func() error { order = append(order, "second"); return os.ErrClosed })

	err := deps.Close()
	require.ErrorIs(t, err, os.ErrClosed)
	require.Equal(t, []string{"second", "first"}, order)

	require.NoError(t, deps.Close(), "second close is a no-op")
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("FLASHSALE_POSTGRES_TEST_DSN"))
}
