package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/app"
)

const (
	envGRPCAddr            = "FLASHSALE_GRPC_ADDR"
	envMetricsAddr         = "FLASHSALE_METRICS_ADDR"
	envStorageDriver       = "FLASHSALE_STORAGE_DRIVER"
	envPostgresDSN         = "FLASHSALE_POSTGRES_DSN"
	envPostgresAutoMigrate = "FLASHSALE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr           = "FLASHSALE_REDIS_ADDR"
	envRedisPassword       = "FLASHSALE_REDIS_PASSWORD"
	envRedisDB             = "FLASHSALE_REDIS_DB"
	envKafkaBrokers        = "KAFKA_BROKERS"

	envWorkerInterval    = "FLASHSALE_WORKER_INTERVAL"
	envWorkerBatch       = "FLASHSALE_WORKER_BATCH"
	envWorkerConcurrency = "FLASHSALE_WORKER_CONCURRENCY"

	envOutboxPollInterval = "FLASHSALE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "FLASHSALE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "FLASHSALE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "FLASHSALE_OUTBOX_RETRY_DELAY"
	envOutboxRetention    = "FLASHSALE_OUTBOX_RETENTION"

	envBridgeTimeout   = "FLASHSALE_BRIDGE_TIMEOUT"
	envDataPlatformURL = "FLASHSALE_DATA_PLATFORM_URL"
	envSeedDemo        = "FLASHSALE_SEED_DEMO"
	envLogLevel        = "FLASHSALE_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// configWarning: переменная окружения, значение которой отброшено.
type configWarning struct {
	Key   string
	Value string
	Err   error
}

func (w configWarning) String() string {
	return fmt.Sprintf("%s=%q ignored: %v", w.Key, w.Value, w.Err)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и warning.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := app.DefaultConfig()
	var warnings []configWarning

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	intVar := func(key string, dst *int, valid func(int) bool, msg string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseInt(raw, valid, msg)
		if err != nil {
			warnings = append(warnings, configWarning{Key: key, Value: raw, Err: err})
			return
		}
		*dst = v
	}
	durationVar := func(key string, dst *time.Duration, valid func(time.Duration) bool, msg string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseDuration(raw, valid, msg)
		if err != nil {
			warnings = append(warnings, configWarning{Key: key, Value: raw, Err: err})
			return
		}
		*dst = v
	}
	boolVar := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseBool(raw)
		if err != nil {
			warnings = append(warnings, configWarning{Key: key, Value: raw, Err: err})
			return
		}
		*dst = v
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolVar(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	str(envRedisAddr, &cfg.RedisAddr)
	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}
	intVar(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	str(envKafkaBrokers, &cfg.KafkaBrokers)

	durationVar(envWorkerInterval, &cfg.WorkerInterval, positiveDuration, "must be > 0")
	intVar(envWorkerBatch, &cfg.WorkerBatchSize, positive, "must be > 0")
	intVar(envWorkerConcurrency, &cfg.WorkerConcurrency, positive, "must be > 0")

	durationVar(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	intVar(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	intVar(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	durationVar(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	durationVar(envOutboxRetention, &cfg.OutboxRetention, positiveDuration, "must be > 0")

	durationVar(envBridgeTimeout, &cfg.BridgeRequestTimeout, positiveDuration, "must be > 0")
	str(envDataPlatformURL, &cfg.DataPlatformURL)
	boolVar(envSeedDemo, &cfg.SeedDemo)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%d %s", v, msg)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s %s", v, msg)
	}
	return v, nil
}
