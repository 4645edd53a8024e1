package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Статусы строки outbox_messages.
const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultPullLimit  = 100
	defaultPurgeLimit = 500
)

const (
	insertOutboxSQL = `
INSERT INTO outbox_messages
    (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '` + outboxPending + `', $6, $6)`

	selectPendingSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload
FROM outbox_messages
WHERE status = '` + outboxPending + `'
ORDER BY created_at, id
LIMIT $1`

	pendingStatsSQL = `
SELECT COUNT(*), MIN(created_at)
FROM outbox_messages
WHERE status = '` + outboxPending + `'`

	transitionSQL = `
UPDATE outbox_messages
SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $1`

	purgeSentSQL = `
DELETE FROM outbox_messages
WHERE id IN (
    SELECT id FROM outbox_messages
    WHERE status = '` + outboxSent + `' AND updated_at < $1
    ORDER BY updated_at
    LIMIT $2
)`
)

// OutboxRepository: outbox событий саги и ранжирования в PostgreSQL.
type OutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет сообщение в статусе pending, при пустом ID генерирует UUID.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, r.now(),
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox %s/%s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending отдаёт самые старые pending-сообщения в порядке вставки.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}
	rows, err := r.db.QueryContext(ctx, selectPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, m)
	}
	return batch, rows.Err()
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, pendingStatsSQL).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	stats.OldestPendingAt = timeFromNull(oldest)
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, outboxFailed)
}

// PurgeSent удаляет до limit отправленных записей, обновлённых раньше before.
func (r *OutboxRepository) PurgeSent(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	res, err := r.db.ExecContext(ctx, purgeSentSQL, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("purge sent outbox: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// transition переводит строку в итоговый статус; отсутствие строки: ErrOutboxPublish.
func (r *OutboxRepository) transition(ctx context.Context, id, status string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, transitionSQL, id, status, r.now())
	if err != nil {
		return fmt.Errorf("outbox %s -> %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("outbox %s: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
