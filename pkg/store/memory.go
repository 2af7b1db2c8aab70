package store

import (
	"context"
	"sync"
)

const DefaultMaxRuns = 1000

// MemoryStore keeps the most recent runs in process memory. Once full, the
// oldest run is dropped to make room.
type MemoryStore struct {
	mu      sync.Mutex
	max     int
	records map[string]Record
	order   []string
}

// NewMemoryStore returns a MemoryStore holding up to maxRuns runs. A
// non-positive maxRuns means DefaultMaxRuns.
func NewMemoryStore(maxRuns int) *MemoryStore {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &MemoryStore{max: maxRuns, records: make(map[string]Record)}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.RunID]; !ok {
		for len(m.order) >= m.max {
			delete(m.records, m.order[0])
			m.order = m.order[1:]
		}
		m.order = append(m.order, rec.RunID)
	}
	m.records[rec.RunID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, runID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[runID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len reports how many runs are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
