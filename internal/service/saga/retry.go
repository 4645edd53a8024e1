package saga

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// RetryConfig: экспоненциальные повторы записи заказа при временных сбоях.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// delayAfter возвращает паузу после попытки attempt (с единицы), не больше MaxDelay.
func (c RetryConfig) delayAfter(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= c.BackoffFactor
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	c.InitialDelay = max(c.InitialDelay, 0)
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// withRetry повторяет fn, пока ошибка временная (domain.IsRetryable).
// Бизнес-отказ возвращается после первой попытки.
func withRetry(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	entry := logger.WithField("operation", operation)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			if attempt > 1 {
				entry.WithField("attempt", attempt).Info("succeeded after retry")
			}
			return nil
		case !domain.IsRetryable(err), attempt >= cfg.MaxAttempts:
			return err
		}

		wait := cfg.delayAfter(attempt)
		entry.WithError(err).WithFields(log.Fields{"attempt": attempt, "delay": wait}).Warn("transient failure, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
