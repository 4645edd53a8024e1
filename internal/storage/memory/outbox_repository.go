package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository: outbox в памяти. Записи лежат в порядке вставки,
// поэтому PullPending не сортирует.
type OutboxRepository struct {
	mu    sync.RWMutex
	log   []*outboxEntry
	index map[string]*outboxEntry
	now   func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		index: make(map[string]*outboxEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	entry := &outboxEntry{msg: msg, status: outboxPending, createdAt: at, updatedAt: at}
	r.log = append(r.log, entry)
	r.index[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var batch []domain.OutboxMessage
	for _, e := range r.log {
		if len(batch) == limit {
			break
		}
		if e.status == outboxPending {
			batch = append(batch, e.msg)
		}
	}
	return batch, nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.log {
		if e.status != outboxPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = e.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.transition(id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.transition(id, outboxFailed)
}

func (r *OutboxRepository) transition(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.index[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	e.status = status
	e.attempts++
	e.updatedAt = r.now()
	return nil
}

// PurgeSent удаляет до limit отправленных записей, обновлённых раньше before.
func (r *OutboxRepository) PurgeSent(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	r.log = slices.DeleteFunc(r.log, func(e *outboxEntry) bool {
		if limit > 0 && deleted >= limit {
			return false
		}
		if e.status != outboxSent || !e.updatedAt.Before(before) {
			return false
		}
		delete(r.index, e.msg.ID)
		deleted++
		return true
	})
	return deleted, nil
}

// Status возвращает статус записи или пустую строку, если её нет.
func (r *OutboxRepository) Status(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.index[id]; ok {
		return e.status
	}
	return ""
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
