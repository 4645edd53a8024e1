package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, ":50051", cfg.GRPCAddr)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.True(t, cfg.PostgresAutoMigrate)
	require.Empty(t, cfg.RedisAddr, "embedded redis by default")
	require.Empty(t, cfg.KafkaBrokers, "kafka is off by default")
	require.False(t, cfg.SeedDemo)

	require.Equal(t, time.Second, cfg.WorkerInterval)
	require.Equal(t, 10, cfg.WorkerBatchSize)
	require.Positive(t, cfg.WorkerConcurrency)

	require.Positive(t, cfg.OutboxPollInterval)
	require.Positive(t, cfg.OutboxBatchSize)
	require.Positive(t, cfg.OutboxMaxAttempts)
	require.GreaterOrEqual(t, cfg.OutboxRetryDelay, time.Duration(0))

	require.Equal(t, 10*time.Minute, cfg.OutboxCleanupInterval)
	require.Equal(t, 500, cfg.OutboxCleanupBatchSize)
	require.Equal(t, 72*time.Hour, cfg.OutboxRetention)

	require.Equal(t, 5*time.Second, cfg.BridgeRequestTimeout)
	require.Equal(t, 3*time.Second, cfg.BridgeRestoreTimeout)
}

func TestConfig_IsComparable(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	require.True(t, a == b)

	b.KafkaBrokers = "localhost:9092"
	require.False(t, a == b)
}
