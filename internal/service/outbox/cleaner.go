package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 72 * time.Hour
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_outbox_cleanup_runs_total",
		Help: "Outbox retention cleanup runs by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashsale_outbox_cleanup_deleted_total",
		Help: "Sent outbox records removed by retention cleanup.",
	})
)

// SentPurger удаляет отправленные записи outbox порциями.
type SentPurger interface {
	PurgeSent(ctx context.Context, before time.Time, limit int) (int, error)
}

// CleanerOptions задаёт параметры очистки.
type CleanerOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
}

// CleanerOption настраивает Cleaner.
type CleanerOption func(*CleanerOptions)

func WithCleanerLogger(logger *log.Entry) CleanerOption {
	return func(opts *CleanerOptions) { opts.Logger = logger }
}

func WithCleanupInterval(interval time.Duration) CleanerOption {
	return func(opts *CleanerOptions) { opts.Interval = interval }
}

func WithCleanupBatchSize(batchSize int) CleanerOption {
	return func(opts *CleanerOptions) { opts.BatchSize = batchSize }
}

// WithRetention задаёт, сколько хранить отправленные записи.
func WithRetention(retention time.Duration) CleanerOption {
	return func(opts *CleanerOptions) { opts.Retention = retention }
}

// Cleaner периодически удаляет отправленные записи старше срока хранения.
type Cleaner struct {
	repo      SentPurger
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	retention time.Duration
	now       func() time.Time
}

// NewCleaner создаёт воркер очистки outbox.
func NewCleaner(repo SentPurger, options ...CleanerOption) *Cleaner {
	opts := CleanerOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-cleaner")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &Cleaner{
		repo:      repo,
		logger:    opts.Logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
		now:       time.Now,
	}
}

// Run чистит outbox до отмены ctx.
func (c *Cleaner) Run(ctx context.Context) {
	if c.repo == nil {
		c.logger.Warn("outbox cleaner is disabled: repo is nil")
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	deleted, err := c.Purge(ctx, c.now().UTC().Add(-c.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cleanupRuns.WithLabelValues("error").Inc()
		c.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}
	cleanupRuns.WithLabelValues("ok").Inc()
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// Purge удаляет все отправленные записи до before порциями batchSize.
func (c *Cleaner) Purge(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := c.repo.PurgeSent(ctx, before, c.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted > 0 {
			cleanupDeleted.Add(float64(deleted))
		}
		if deleted < c.batchSize {
			return total, nil
		}
	}
}
