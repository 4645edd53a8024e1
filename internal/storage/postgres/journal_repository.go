package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

type journalRepository struct {
	db *sql.DB
}

// NewJournalRepository создаёт журнал саг поверх таблицы saga_journal.
func NewJournalRepository(store *Store) domain.JournalRepository {
	return &journalRepository{db: store.DB()}
}

func (r *journalRepository) Append(ctx context.Context, entry domain.JournalEntry) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	occurred := entry.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO saga_journal (saga_id, type, step, order_id, reason, occurred)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.SagaID, entry.Type, string(entry.Step), entry.OrderID, entry.Reason, occurred.UTC()); err != nil {
		return fmt.Errorf("append saga journal: %w", err)
	}
	return nil
}

// List возвращает записи саги в порядке добавления.
func (r *journalRepository) List(ctx context.Context, sagaID string) ([]domain.JournalEntry, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT saga_id, type, step, order_id, reason, occurred
		FROM saga_journal
		WHERE saga_id = $1
		ORDER BY occurred ASC, id ASC
	`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("list saga journal: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var (
			entry domain.JournalEntry
			step  string
		)
		if err := rows.Scan(&entry.SagaID, &entry.Type, &step, &entry.OrderID, &entry.Reason, &entry.Occurred); err != nil {
			return nil, fmt.Errorf("scan saga journal: %w", err)
		}
		entry.Step = domain.SagaStep(step)
		entry.Occurred = entry.Occurred.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga journal: %w", err)
	}
	return entries, nil
}
