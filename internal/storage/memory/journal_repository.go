package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// journalRepositoryInMemory хранит журнал саг в памяти (для разработки/тестов).
type journalRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[string][]domain.JournalEntry
}

// NewJournalRepository создаёт in-memory реализацию JournalRepository.
func NewJournalRepository() domain.JournalRepository {
	return &journalRepositoryInMemory{entries: make(map[string][]domain.JournalEntry)}
}

// Append добавляет запись и сохраняет хронологический порядок.
func (r *journalRepositoryInMemory) Append(_ context.Context, entry domain.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append(r.entries[entry.SagaID], entry)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Occurred.Before(entries[j].Occurred)
	})
	r.entries[entry.SagaID] = entries
	return nil
}

// List возвращает копию журнала саги.
func (r *journalRepositoryInMemory) List(_ context.Context, sagaID string) ([]domain.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[sagaID]
	result := make([]domain.JournalEntry, len(entries))
	copy(result, entries)
	return result, nil
}

var _ domain.JournalRepository = (*journalRepositoryInMemory)(nil)
