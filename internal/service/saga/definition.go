package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/metrics"
)

const (
	stepIndexValidate = iota
	stepIndexStock
	stepIndexCoupon
	stepIndexBalance
	stepIndexPersist
)

// Step: шаг саги с действием и компенсацией. Compensate может быть nil.
type Step struct {
	Name       domain.SagaStep
	Execute    func(ctx context.Context, st *State) error
	Compensate func(ctx context.Context, st *State) error
}

// Dependencies: порты, через которые шаги меняют данные.
type Dependencies struct {
	Inventory   Inventory
	Coupons     Coupons
	Balances    Balances
	Orders      domain.OrderRepository
	SideEffects SideEffects
	Retry       RetryConfig
	Now         func() time.Time
}

// Definition: упорядоченный список шагов оформления заказа:
// validate, stock, coupon, balance, persist.
type Definition struct {
	deps    Dependencies
	steps   []Step
	metrics *metrics.SagaMetrics
	logger  *log.Entry
}

// NewDefinition собирает шаги саги поверх переданных портов.
func NewDefinition(deps Dependencies, sagaMetrics *metrics.SagaMetrics, logger *log.Entry) *Definition {
	if logger == nil {
		logger = log.WithField("component", "saga")
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	d := &Definition{deps: deps, metrics: sagaMetrics, logger: logger}
	d.steps = []Step{
		{Name: domain.SagaStepValidate, Execute: d.validate},
		{Name: domain.SagaStepStock, Execute: d.deductStock, Compensate: d.restoreStock},
		{Name: domain.SagaStepCoupon, Execute: d.useCoupon, Compensate: d.restoreCoupon},
		{Name: domain.SagaStepBalance, Execute: d.debitBalance, Compensate: d.restoreBalance},
		{Name: domain.SagaStepPersist, Execute: d.persist},
	}
	return d
}

// Steps возвращает копию списка шагов.
func (d *Definition) Steps() []Step {
	out := make([]Step, len(d.steps))
	copy(out, d.steps)
	return out
}

// run выполняет шаги [from, to). При отказе шага i компенсирует шаги [0, i)
// в обратном порядке и возвращает имя упавшего шага с исходной ошибкой.
func (d *Definition) run(ctx context.Context, st *State, from, to int) (domain.SagaStep, error) {
	for i := from; i < to && i < len(d.steps); i++ {
		step := d.steps[i]
		started := time.Now()
		err := step.Execute(ctx, st)
		d.metrics.RecordStepDuration(string(step.Name), time.Since(started))
		if err != nil {
			d.logger.WithError(err).WithFields(log.Fields{
				"saga_id":  st.SagaID,
				"order_id": st.OrderID,
				"step":     step.Name,
			}).Warn("saga step failed")
			d.compensate(ctx, st, i)
			return step.Name, err
		}
	}
	return "", nil
}

// compensate откатывает выполненные шаги [0, upTo) в обратном порядке.
// Ошибки компенсаций только логируются.
func (d *Definition) compensate(ctx context.Context, st *State, upTo int) {
	ctx = context.WithoutCancel(ctx)
	for i := upTo - 1; i >= 0; i-- {
		step := d.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx, st); err != nil {
			d.logger.WithError(err).WithFields(log.Fields{
				"saga_id": st.SagaID,
				"step":    step.Name,
			}).Error("compensation failed")
		}
	}
}

func (d *Definition) validate(_ context.Context, st *State) error {
	return st.Request.Validate()
}

func (d *Definition) deductStock(ctx context.Context, st *State) error {
	items := make([]domain.OrderItem, 0, len(st.Request.Items))
	for _, line := range st.Request.Items {
		product, err := d.deps.Inventory.Deduct(ctx, line.ProductID, int64(line.Quantity))
		if err == nil {
			st.addDeducted(line.ProductID, int64(line.Quantity))
			var item domain.OrderItem
			if item, err = line.PriceFor(product); err == nil {
				items = append(items, item)
				continue
			}
		}
		// частично списанное возвращаем сразу, следующие компенсации о них не знают
		if restoreErr := d.restoreStock(context.WithoutCancel(ctx), st); restoreErr != nil {
			d.logger.WithError(restoreErr).WithField("saga_id", st.SagaID).Error("partial stock restoration failed")
		}
		return fmt.Errorf("deduct product %d: %w", line.ProductID, err)
	}
	st.Items = items
	st.TotalMinor = domain.ItemsTotal(items)
	return nil
}

// restoreStock возвращает списанное в порядке списания.
func (d *Definition) restoreStock(ctx context.Context, st *State) error {
	var errs []error
	for _, line := range st.deducted {
		err := d.deps.Inventory.Restore(ctx, st.SagaID, line.productID, line.qty)
		d.metrics.RecordCompensation(string(domain.SagaStepStock), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore product %d: %w", line.productID, err))
		}
	}
	st.deducted = nil
	return errors.Join(errs...)
}

func (d *Definition) useCoupon(ctx context.Context, st *State) error {
	if !st.Request.HasCoupon() {
		st.DiscountMinor = 0
		st.DiscountedMinor = st.TotalMinor
		return nil
	}
	userCouponID := *st.Request.UserCouponID
	uc, err := d.deps.Coupons.Use(ctx, st.Request.UserID, userCouponID)
	if err != nil {
		return fmt.Errorf("use coupon %d: %w", userCouponID, err)
	}
	st.couponUsed = true
	st.DiscountedMinor = domain.ApplyDiscount(st.TotalMinor, uc.DiscountMinor)
	// фактическая скидка не больше суммы заказа
	st.DiscountMinor = st.TotalMinor - st.DiscountedMinor
	return nil
}

func (d *Definition) restoreCoupon(ctx context.Context, st *State) error {
	if !st.couponUsed || !st.Request.HasCoupon() {
		return nil
	}
	err := d.deps.Coupons.Restore(ctx, st.SagaID, *st.Request.UserCouponID)
	d.metrics.RecordCompensation(string(domain.SagaStepCoupon), err)
	if err != nil {
		return fmt.Errorf("restore coupon %d: %w", *st.Request.UserCouponID, err)
	}
	st.couponUsed = false
	return nil
}

func (d *Definition) debitBalance(ctx context.Context, st *State) error {
	if err := d.deps.Balances.Deduct(ctx, st.Request.UserID, st.DiscountedMinor); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	st.debited = true
	return nil
}

func (d *Definition) restoreBalance(ctx context.Context, st *State) error {
	if !st.debited {
		return nil
	}
	err := d.deps.Balances.Restore(ctx, st.SagaID, st.Request.UserID, st.DiscountedMinor)
	d.metrics.RecordCompensation(string(domain.SagaStepBalance), err)
	if err != nil {
		return fmt.Errorf("restore balance: %w", err)
	}
	st.debited = false
	return nil
}

func (d *Definition) persist(ctx context.Context, st *State) error {
	order := domain.Order{
		ID:              st.OrderID,
		UserID:          st.Request.UserID,
		Items:           st.Items,
		TotalMinor:      st.TotalMinor,
		DiscountedMinor: st.DiscountedMinor,
		DiscountMinor:   st.DiscountMinor,
		Status:          domain.OrderStatusCompleted,
		OrderedAt:       d.deps.Now(),
	}
	if st.Request.HasCoupon() {
		id := *st.Request.UserCouponID
		order.UserCouponID = &id
	}

	attempts := 0
	err := withRetry(ctx, d.deps.Retry, d.logger, "persist order", func(ctx context.Context) error {
		attempts++
		err := d.deps.Orders.Create(ctx, order)
		// повтор после таймаута мог столкнуться с уже записанным заказом
		if attempts > 1 && errors.Is(err, domain.ErrOrderAlreadyExists) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("persist order %s: %w", order.ID, err)
	}
	st.Order = order

	if d.deps.SideEffects != nil {
		if err := d.deps.SideEffects.OrderCompleted(ctx, st.SagaID, order); err != nil {
			d.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to record order side effects")
		}
	}
	return nil
}
