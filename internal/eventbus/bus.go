package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// ErrBusClosed возвращается при публикации после Close.
var ErrBusClosed = errors.New("event bus is closed")

var (
	busPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_eventbus_published_total",
		Help: "Events published to the in-process bus grouped by type.",
	}, []string{"type"})
	busHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_eventbus_handler_errors_total",
		Help: "Handler failures on the in-process bus grouped by event type.",
	}, []string{"type"})
)

// Type: имя типа события, по нему выбираются подписчики.
type Type string

// Event: любое событие шины.
type Event interface {
	EventType() Type
}

// Handler обрабатывает событие. Ошибка только логируется.
type Handler func(ctx context.Context, event Event) error

// Bus: внутрипроцессная шина с явным реестром подписчиков.
// Каждый обработчик получает событие в отдельной горутине.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	closed   bool
	inflight sync.WaitGroup
	logger   *log.Entry
}

// New создаёт шину.
func New(logger *log.Entry) *Bus {
	if logger == nil {
		logger = log.WithField("component", "eventbus")
	}
	return &Bus{handlers: make(map[Type][]Handler), logger: logger}
}

// Subscribe регистрирует обработчик для типа события.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// On регистрирует типизированный обработчик; тип события берётся из нулевого значения T.
func On[T Event](b *Bus, handler func(ctx context.Context, event T) error) {
	var zero T
	b.Subscribe(zero.EventType(), func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			return fmt.Errorf("eventbus: unexpected payload %T for %s", event, zero.EventType())
		}
		return handler(ctx, typed)
	})
}

// Publish рассылает событие подписчикам и сразу возвращает управление.
// Обработчики получают контекст без отмены вызывающего.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := append([]Handler(nil), b.handlers[event.EventType()]...)
	b.inflight.Add(len(handlers))
	b.mu.RUnlock()

	busPublished.WithLabelValues(string(event.EventType())).Inc()

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go b.deliver(detached, handler, event)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, handler Handler, event Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			busHandlerErrors.WithLabelValues(string(event.EventType())).Inc()
			b.logger.WithField("event_type", event.EventType()).Errorf("event handler panicked: %v", r)
		}
	}()

	if err := handler(ctx, event); err != nil {
		busHandlerErrors.WithLabelValues(string(event.EventType())).Inc()
		b.logger.WithError(err).WithField("event_type", event.EventType()).Warn("event handler failed")
	}
}

// Wait ждёт завершения всех доставок, включая порождённые ими публикации.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// Close запрещает новые публикации и дожидается текущих доставок.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
}
