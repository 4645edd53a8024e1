package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/metrics"
)

// StockDeducter списывает остаток напрямую.
type StockDeducter interface {
	Deduct(ctx context.Context, productID, qty int64) (domain.Product, error)
}

// CouponUser применяет купон напрямую.
type CouponUser interface {
	Use(ctx context.Context, userID, userCouponID int64) (domain.UserCoupon, error)
}

// BalanceDebiter списывает деньги напрямую.
type BalanceDebiter interface {
	Deduct(ctx context.Context, userID, amountMinor int64) error
}

// ChoreographyDependencies: зависимости хореографической саги. Прямые
// шаги идут в сервисы, компенсации уходят событиями *RestorationRequested.
type ChoreographyDependencies struct {
	Stock       StockDeducter
	Coupons     CouponUser
	Balances    BalanceDebiter
	Orders      domain.OrderRepository
	SideEffects SideEffects
	Journal     domain.JournalRepository
	Retry       RetryConfig
}

// Status: видимое снаружи состояние хореографической саги.
type Status struct {
	SagaID     string
	OrderID    string
	Phase      domain.SagaPhase
	FailedStep domain.SagaStep
	Reason     string
	Entries    []domain.JournalEntry
}

// Choreographer ведёт сагу цепочкой событий шины: каждый обработчик
// выполняет свой шаг и публикует следующее событие.
type Choreographer struct {
	bus     *eventbus.Bus
	def     *Definition
	journal domain.JournalRepository
	metrics *metrics.SagaMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewChoreographer создаёт хореографию. Register подписывает её на шину.
func NewChoreographer(bus *eventbus.Bus, deps ChoreographyDependencies, sagaMetrics *metrics.SagaMetrics, logger *log.Entry) *Choreographer {
	if logger == nil {
		logger = log.WithField("component", "saga-choreography")
	}
	def := NewDefinition(Dependencies{
		Inventory:   eventInventory{StockDeducter: deps.Stock, bus: bus},
		Coupons:     eventCoupons{CouponUser: deps.Coupons, bus: bus},
		Balances:    eventBalances{BalanceDebiter: deps.Balances, bus: bus},
		Orders:      deps.Orders,
		SideEffects: deps.SideEffects,
		Retry:       deps.Retry,
	}, sagaMetrics, logger)

	return &Choreographer{
		bus:     bus,
		def:     def,
		journal: deps.Journal,
		metrics: sagaMetrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register подписывает обработчики этапов саги.
func (c *Choreographer) Register() {
	eventbus.On(c.bus, c.onStarted)
	eventbus.On(c.bus, c.onStockProcessed)
	eventbus.On(c.bus, c.onCouponProcessed)
	eventbus.On(c.bus, c.onBalanceProcessed)
	eventbus.On(c.bus, c.onCompleted)
	eventbus.On(c.bus, c.onFailed)
}

// Submit запускает сагу и сразу возвращает её идентификатор.
func (c *Choreographer) Submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	st := newState(uuid.NewString(), uuid.NewString(), req, c.now())

	if err := c.record(ctx, st.SagaID, st.OrderID, events.TypeOrderProcessingStarted, "", ""); err != nil {
		return "", fmt.Errorf("journal saga start: %w", err)
	}
	if err := c.bus.Publish(ctx, events.OrderProcessingStarted{Progress: st.Progress()}); err != nil {
		return "", fmt.Errorf("publish saga start: %w", err)
	}
	c.metrics.RecordSagaStarted(variantChoreographed)

	c.logger.WithFields(log.Fields{
		"saga_id":  st.SagaID,
		"order_id": st.OrderID,
		"user_id":  req.UserID,
	}).Info("order saga accepted")
	return st.SagaID, nil
}

// Status собирает состояние саги из журнала.
func (c *Choreographer) Status(ctx context.Context, sagaID string) (Status, error) {
	entries, err := c.journal.List(ctx, sagaID)
	if err != nil {
		return Status{}, err
	}
	if len(entries) == 0 {
		return Status{}, domain.ErrSagaNotFound
	}

	status := Status{SagaID: sagaID, Phase: domain.SagaPhaseAccepted, Entries: entries}
	for _, entry := range entries {
		if entry.OrderID != "" {
			status.OrderID = entry.OrderID
		}
		switch entry.Type {
		case string(events.TypeOrderCompleted):
			status.Phase = domain.SagaPhaseCompleted
		case string(events.TypeOrderProcessingFailed):
			status.Phase = domain.SagaPhaseFailed
			status.FailedStep = entry.Step
			status.Reason = entry.Reason
		}
	}
	return status, nil
}

func (c *Choreographer) onStarted(ctx context.Context, ev events.OrderProcessingStarted) error {
	return c.advance(ctx, ev.Progress, stepIndexValidate, stepIndexCoupon, func(st *State) eventbus.Event {
		return events.StockProcessed{Progress: st.Progress()}
	})
}

func (c *Choreographer) onStockProcessed(ctx context.Context, ev events.StockProcessed) error {
	return c.advance(ctx, ev.Progress, stepIndexCoupon, stepIndexBalance, func(st *State) eventbus.Event {
		return events.CouponProcessed{Progress: st.Progress()}
	})
}

func (c *Choreographer) onCouponProcessed(ctx context.Context, ev events.CouponProcessed) error {
	return c.advance(ctx, ev.Progress, stepIndexBalance, stepIndexPersist, func(st *State) eventbus.Event {
		return events.BalanceProcessed{Progress: st.Progress()}
	})
}

func (c *Choreographer) onBalanceProcessed(ctx context.Context, ev events.BalanceProcessed) error {
	return c.advance(ctx, ev.Progress, stepIndexPersist, len(c.def.steps), func(st *State) eventbus.Event {
		return events.OrderCompleted{SagaID: st.SagaID, Order: st.Order}
	})
}

func (c *Choreographer) onCompleted(ctx context.Context, ev events.OrderCompleted) error {
	c.metrics.RecordSagaCompleted(variantChoreographed)
	c.logger.WithFields(log.Fields{"saga_id": ev.SagaID, "order_id": ev.Order.ID}).Info("order saga completed")
	return c.record(ctx, ev.SagaID, ev.Order.ID, events.TypeOrderCompleted, domain.SagaStepPersist, "")
}

func (c *Choreographer) onFailed(ctx context.Context, ev events.OrderProcessingFailed) error {
	c.metrics.RecordSagaFailed(variantChoreographed, string(ev.Step))
	c.logger.WithFields(log.Fields{
		"saga_id": ev.SagaID,
		"step":    ev.Step,
		"reason":  ev.Reason,
	}).Warn("order saga failed")
	return c.record(ctx, ev.SagaID, ev.OrderID, events.TypeOrderProcessingFailed, ev.Step, ev.Reason)
}

// advance выполняет шаги [from, to) и публикует следующее событие либо отказ.
func (c *Choreographer) advance(ctx context.Context, p events.Progress, from, to int, next func(st *State) eventbus.Event) error {
	st := stateFromProgress(p, from)

	failed, err := c.def.run(ctx, st, from, to)
	if err != nil {
		return c.bus.Publish(ctx, events.OrderProcessingFailed{
			SagaID:  st.SagaID,
			OrderID: st.OrderID,
			Step:    failed,
			Reason:  err.Error(),
		})
	}

	event := next(st)
	if to < len(c.def.steps) {
		if err := c.record(ctx, st.SagaID, st.OrderID, event.EventType(), c.def.steps[to-1].Name, ""); err != nil {
			c.logger.WithError(err).WithField("saga_id", st.SagaID).Warn("failed to journal saga progress")
		}
	}
	return c.bus.Publish(ctx, event)
}

func (c *Choreographer) record(ctx context.Context, sagaID, orderID string, eventType eventbus.Type, step domain.SagaStep, reason string) error {
	if c.journal == nil {
		return nil
	}
	err := c.journal.Append(ctx, domain.JournalEntry{
		SagaID:   sagaID,
		Type:     string(eventType),
		Step:     step,
		OrderID:  orderID,
		Reason:   reason,
		Occurred: c.now(),
	})
	if err == nil {
		c.metrics.RecordJournalEntry()
	}
	return err
}

// eventInventory публикует возврат остатка событием, защищённым guard'ом по sagaID.
type eventInventory struct {
	StockDeducter
	bus *eventbus.Bus
}

func (e eventInventory) Restore(ctx context.Context, sagaID string, productID, qty int64) error {
	return e.bus.Publish(ctx, events.StockRestorationRequested{SagaID: sagaID, ProductID: productID, Quantity: qty})
}

type eventCoupons struct {
	CouponUser
	bus *eventbus.Bus
}

func (e eventCoupons) Restore(ctx context.Context, sagaID string, userCouponID int64) error {
	return e.bus.Publish(ctx, events.CouponRestorationRequested{SagaID: sagaID, UserCouponID: userCouponID})
}

type eventBalances struct {
	BalanceDebiter
	bus *eventbus.Bus
}

func (e eventBalances) Restore(ctx context.Context, sagaID string, userID, amountMinor int64) error {
	return e.bus.Publish(ctx, events.BalanceRestorationRequested{SagaID: sagaID, UserID: userID, AmountMinor: amountMinor})
}
