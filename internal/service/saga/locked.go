package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/metrics"
)

const (
	variantLocked        = "locked"
	variantChoreographed = "choreographed"

	defaultLockWait = 10 * time.Second
	defaultLockHold = 30 * time.Second
)

// Locker выполняет функцию под распределённой блокировкой.
type Locker interface {
	WithLock(ctx context.Context, key string, wait, hold time.Duration, fn func(ctx context.Context) error) error
}

// Result: итог синхронной саги.
type Result struct {
	SagaID     string
	Order      domain.Order
	FailedStep domain.SagaStep
}

// LockKey: ключ блокировки заказов пользователя.
func LockKey(userID int64) string {
	return fmt.Sprintf("lock:order:user:%d", userID)
}

// LockedExecutor выполняет сагу целиком в вызывающей горутине,
// сериализуя заказы одного пользователя блокировкой.
type LockedExecutor struct {
	def      *Definition
	locker   Locker
	lockWait time.Duration
	lockHold time.Duration
	metrics  *metrics.SagaMetrics
	logger   *log.Entry
}

// NewLockedExecutor создаёт исполнителя с ожиданием блокировки 10 с и удержанием 30 с.
func NewLockedExecutor(def *Definition, locker Locker, sagaMetrics *metrics.SagaMetrics, logger *log.Entry) *LockedExecutor {
	if logger == nil {
		logger = log.WithField("component", "saga-locked")
	}
	return &LockedExecutor{
		def:      def,
		locker:   locker,
		lockWait: defaultLockWait,
		lockHold: defaultLockHold,
		metrics:  sagaMetrics,
		logger:   logger,
	}
}

// WithLockTimeouts переопределяет ожидание и удержание блокировки.
func (e *LockedExecutor) WithLockTimeouts(wait, hold time.Duration) *LockedExecutor {
	e.lockWait = wait
	e.lockHold = hold
	return e
}

// Execute проводит заказ через все шаги. При отказе выполненные шаги
// компенсируются, а наружу возвращается исходная ошибка.
func (e *LockedExecutor) Execute(ctx context.Context, req domain.OrderRequest) (Result, error) {
	st := newState(uuid.NewString(), uuid.NewString(), req, time.Now().UTC())
	result := Result{SagaID: st.SagaID}

	if err := req.Validate(); err != nil {
		e.metrics.RecordSagaFailed(variantLocked, string(domain.SagaStepValidate))
		result.FailedStep = domain.SagaStepValidate
		return result, err
	}

	e.metrics.RecordSagaStarted(variantLocked)
	e.metrics.RecordSagaInFlightStarted()
	defer e.metrics.RecordSagaInFlightFinished()
	started := time.Now()

	logger := e.logger.WithFields(log.Fields{"saga_id": st.SagaID, "user_id": req.UserID})

	var failed domain.SagaStep
	err := e.locker.WithLock(ctx, LockKey(req.UserID), e.lockWait, e.lockHold, func(ctx context.Context) error {
		var runErr error
		failed, runErr = e.def.run(ctx, st, stepIndexValidate, len(e.def.steps))
		return runErr
	})
	e.metrics.RecordSagaDuration(time.Since(started))

	if err != nil {
		result.FailedStep = failed
		label := string(failed)
		if label == "" {
			// блокировка не получена, шаги не запускались
			label = "lock"
		}
		e.metrics.RecordSagaFailed(variantLocked, label)
		logger.WithError(err).WithField("step", failed).Warn("order saga failed")
		return result, err
	}

	result.Order = st.Order
	e.metrics.RecordSagaCompleted(variantLocked)
	logger.WithField("order_id", st.Order.ID).Info("order saga completed")
	return result, nil
}
