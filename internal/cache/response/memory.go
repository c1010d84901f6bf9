package response

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps cache entries in process memory. It backs the
// "memory" driver and the tests; entries vanish on restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*Entry)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (r *MemoryRepository) BestMatch(_ context.Context, vec []float32, limit int) (*Entry, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recent := r.newestFirst()
	if len(recent) > limit {
		recent = recent[:limit]
	}
	entry, sim := bestByCosine(recent, vec)
	if entry == nil {
		return nil, 0, nil
	}
	clone := *entry
	return &clone, sim, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries[entry.ID] = &clone
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

func (r *MemoryRepository) DeleteOldest(_ context.Context, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.newestFirst()
	for i := len(entries) - 1; i >= 0 && n > 0; i-- {
		delete(r.entries, entries[i].ID)
		n--
	}
	return nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

// newestFirst snapshots the entries ordered by cached_at descending.
// Callers hold at least a read lock.
func (r *MemoryRepository) newestFirst() []*Entry {
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CachedAt > entries[j].CachedAt })
	return entries
}
