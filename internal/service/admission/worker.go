package admission

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultBatchSize    = 10
	defaultConcurrency  = 4
)

// WorkerOptions задаёт параметры планировщика очередей.
type WorkerOptions struct {
	Logger       *log.Entry
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт период обхода очередей.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт число заявок, извлекаемых из одной очереди за проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithConcurrency ограничивает число очередей, обрабатываемых одновременно.
func WithConcurrency(n int) Option {
	return func(opts *WorkerOptions) {
		opts.Concurrency = n
	}
}

// BatchReport: итог обработки одной очереди за проход.
type BatchReport struct {
	CouponID  int64
	Processed int
	Failed    int
}

// Worker извлекает заявки из очередей и передаёт их Issuer.
type Worker struct {
	queue        *Queue
	issuer       Issuer
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	concurrency  int
}

// NewWorker создаёт воркер допуска.
func NewWorker(queue *Queue, issuer Issuer, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		Concurrency:  defaultConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "admission-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Worker{
		queue:        queue,
		issuer:       issuer,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		concurrency:  opts.Concurrency,
	}
}

// Run обходит активные очереди каждые PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil || w.issuer == nil {
		w.logger.Warn("admission worker is disabled: queue or issuer is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один проход по всем активным очередям.
// Разные купоны обрабатываются параллельно, заявки одного купона: последовательно.
func (w *Worker) ProcessOnce(ctx context.Context) []BatchReport {
	if ctx.Err() != nil {
		return nil
	}

	coupons, err := w.queue.ActiveCoupons(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to list active coupon queues")
		return nil
	}
	activeQueues.Set(float64(len(coupons)))
	if len(coupons) == 0 {
		return nil
	}

	reports := make([]BatchReport, len(coupons))
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, couponID := range coupons {
		g.Go(func() error {
			report, err := w.ProcessBatch(ctx, couponID, w.batchSize)
			if err != nil {
				w.logger.WithError(err).WithField("coupon_id", couponID).Warn("coupon queue batch interrupted")
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// ProcessBatch извлекает до batchSize заявок одного купона в порядке очереди.
func (w *Worker) ProcessBatch(ctx context.Context, couponID int64, batchSize int) (BatchReport, error) {
	report := BatchReport{CouponID: couponID}
	for report.Processed < batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		userID, ok, err := w.queue.DequeueOldest(ctx, couponID)
		if err != nil {
			return report, err
		}
		if !ok {
			break
		}
		queueDequeued.Inc()
		report.Processed++

		if err := w.issuer.Issue(ctx, couponID, userID); err != nil {
			report.Failed++
			w.logger.WithError(err).WithFields(log.Fields{
				"coupon_id": couponID,
				"user_id":   userID,
			}).Warn("coupon issue attempt failed")
		}
	}

	if report.Processed > 0 {
		w.logger.WithFields(log.Fields{
			"coupon_id": couponID,
			"processed": report.Processed,
			"failed":    report.Failed,
		}).Info("coupon queue batch processed")
	}
	return report, nil
}
