package outbox

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// HandlerFunc обрабатывает тело outbox-сообщения внутри процесса.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Router доставляет сообщения outbox обработчикам в этом же процессе по EventType.
// Используется вместо брокера, когда Kafka не настроена.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *log.Entry
}

// NewRouter создаёт пустой маршрутизатор.
func NewRouter(logger *log.Entry) *Router {
	if logger == nil {
		logger = log.WithField("component", "outbox-router")
	}
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// Handle регистрирует обработчик для типа события.
func (r *Router) Handle(eventType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

// Publish вызывает обработчик типа. Сообщения без обработчика считаются доставленными.
func (r *Router) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	r.mu.RLock()
	handler, ok := r.handlers[msg.EventType]
	r.mu.RUnlock()

	if !ok {
		r.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
		}).Debug("no local handler for outbox message")
		return nil
	}
	if err := handler(ctx, msg.Payload); err != nil {
		return fmt.Errorf("handle %s: %w", msg.EventType, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*Router)(nil)
