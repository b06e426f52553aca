package roster

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// MemoryRepository keeps entries in process. It backs demos and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]models.Entry
	writes  []Write
}

// Write is one recorded update.
type Write struct {
	EntryID uuid.UUID
	Update  EntryUpdate
}

func NewMemoryRepository(entries ...models.Entry) *MemoryRepository {
	r := &MemoryRepository{entries: make(map[uuid.UUID]models.Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r
}

// Put inserts or replaces an entry.
func (r *MemoryRepository) Put(e models.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

func (r *MemoryRepository) ListEntries(_ context.Context, filter FlightFilter) ([]models.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Day == filter.Day && e.Platform == filter.Platform && e.Flight == filter.Flight {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b models.Entry) int {
		if c := cmp.Compare(a.LotNumber, b.LotNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (r *MemoryRepository) GetEntry(_ context.Context, id uuid.UUID) (*models.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) UpdateEntry(_ context.Context, id uuid.UUID, update EntryUpdate) (*models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	e = update.Apply(e)
	r.entries[id] = e
	r.writes = append(r.writes, Write{EntryID: id, Update: update})
	return &e, nil
}

// Writes returns every update applied so far, oldest first.
func (r *MemoryRepository) Writes() []Write {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.writes)
}
