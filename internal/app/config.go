package app

import "time"

// StorageDriver выбирает хранилище записей (купоны, товары, счета, заказы, outbox).
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// Пустой RedisAddr поднимает встроенный miniredis (только для разработки).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers: список брокеров через запятую. Пусто: Kafka выключена.
	KafkaBrokers string

	WorkerInterval    time.Duration
	WorkerBatchSize   int
	WorkerConcurrency int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	OutboxCleanupInterval  time.Duration
	OutboxCleanupBatchSize int
	OutboxRetention        time.Duration

	BridgeRequestTimeout time.Duration
	BridgeRestoreTimeout time.Duration
	LockRetryInterval    time.Duration

	DataPlatformURL     string
	DataPlatformTimeout time.Duration

	// SeedDemo создаёт демонстрационный купон, товары и счета при старте.
	SeedDemo bool
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:               ":50051",
		MetricsAddr:            ":9090",
		StorageDriver:          StorageDriverMemory,
		PostgresAutoMigrate:    true,
		WorkerInterval:         time.Second,
		WorkerBatchSize:        10,
		WorkerConcurrency:      4,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      5,
		OutboxRetryDelay:       time.Second,
		OutboxCleanupInterval:  10 * time.Minute,
		OutboxCleanupBatchSize: 500,
		OutboxRetention:        72 * time.Hour,
		BridgeRequestTimeout:   5 * time.Second,
		BridgeRestoreTimeout:   3 * time.Second,
		LockRetryInterval:      50 * time.Millisecond,
		DataPlatformTimeout:    3 * time.Second,
	}
}
