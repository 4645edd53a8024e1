package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
)

// Таймауты ожидания ответа по умолчанию.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultRestoreTimeout = 3 * time.Second
)

var errDuplicateCorrelation = errors.New("correlation id is already waiting for a response")

var bridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flashsale_bridge_requests_total",
	Help: "Bridge request/response exchanges grouped by result.",
}, []string{"result"})

// Publisher: шина, в которую мост публикует запросы.
type Publisher interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

type waiter struct {
	ch   chan eventbus.Event
	want eventbus.Type
}

// Bridge превращает пару событий запрос/ответ в синхронный вызов с дедлайном.
type Bridge struct {
	publisher Publisher
	logger    *log.Entry

	mu      sync.Mutex
	waiters map[string]waiter
}

// New создаёт мост поверх publisher.
func New(publisher Publisher, logger *log.Entry) *Bridge {
	if logger == nil {
		logger = log.WithField("component", "bridge")
	}
	return &Bridge{
		publisher: publisher,
		logger:    logger,
		waiters:   make(map[string]waiter),
	}
}

// PublishAndWait регистрирует ожидание, публикует запрос и ждёт ответ типа responseType.
// По таймауту возвращает domain.ErrProcessingTimeout; регистрация снимается в любом случае.
func (b *Bridge) PublishAndWait(ctx context.Context, request eventbus.Event, correlationID string, responseType eventbus.Type, timeout time.Duration) (eventbus.Event, error) {
	ch := make(chan eventbus.Event, 1)

	b.mu.Lock()
	if _, exists := b.waiters[correlationID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", errDuplicateCorrelation, correlationID)
	}
	b.waiters[correlationID] = waiter{ch: ch, want: responseType}
	b.mu.Unlock()

	defer b.forget(correlationID)

	if err := b.publisher.Publish(ctx, request); err != nil {
		bridgeRequests.WithLabelValues("publish_error").Inc()
		return nil, fmt.Errorf("publish %s: %w", request.EventType(), err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-ch:
		bridgeRequests.WithLabelValues("ok").Inc()
		return response, nil
	case <-timer.C:
		if response, ok := b.lateResponse(correlationID, ch); ok {
			bridgeRequests.WithLabelValues("ok").Inc()
			return response, nil
		}
		bridgeRequests.WithLabelValues("timeout").Inc()
		b.logger.WithFields(log.Fields{
			"correlation_id": correlationID,
			"request_type":   request.EventType(),
			"timeout":        timeout,
		}).Warn("bridge response timed out")
		return nil, fmt.Errorf("%w: no %s within %s", domain.ErrProcessingTimeout, responseType, timeout)
	case <-ctx.Done():
		if response, ok := b.lateResponse(correlationID, ch); ok {
			bridgeRequests.WithLabelValues("ok").Inc()
			return response, nil
		}
		bridgeRequests.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	}
}

// lateResponse снимает регистрацию после таймаута. Если Deliver успел раньше,
// ответ уже лежит в канале и возвращается вызывающему: Deliver вернул true
// ровно тогда, когда ответ получен.
func (b *Bridge) lateResponse(correlationID string, ch chan eventbus.Event) (eventbus.Event, bool) {
	b.mu.Lock()
	_, waiting := b.waiters[correlationID]
	delete(b.waiters, correlationID)
	b.mu.Unlock()
	if waiting {
		return nil, false
	}
	return <-ch, true
}

// Deliver передаёт ответ ожидающему вызову. Неизвестный id или чужой тип игнорируются.
// false означает, что ответ никто не получит и результат запроса должен быть отменён отправителем ответа.
func (b *Bridge) Deliver(correlationID string, response eventbus.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.waiters[correlationID]
	if !ok {
		b.logger.WithFields(log.Fields{
			"correlation_id": correlationID,
			"response_type":  response.EventType(),
		}).Warn("no pending request for response")
		return false
	}
	if response.EventType() != w.want {
		b.logger.WithFields(log.Fields{
			"correlation_id": correlationID,
			"response_type":  response.EventType(),
			"expected_type":  w.want,
		}).Warn("response type mismatch")
		return false
	}

	delete(b.waiters, correlationID)
	w.ch <- response
	return true
}

// Pending возвращает число ожидающих запросов.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

func (b *Bridge) forget(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, correlationID)
}

// Await: типизированная обёртка над PublishAndWait.
func Await[T eventbus.Event](ctx context.Context, b *Bridge, request eventbus.Event, correlationID string, timeout time.Duration) (T, error) {
	var zero T
	response, err := b.PublishAndWait(ctx, request, correlationID, zero.EventType(), timeout)
	if err != nil {
		return zero, err
	}
	typed, ok := response.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", domain.ErrUnexpectedResponse, response)
	}
	return typed, nil
}
