package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store used by tests that need an Entry Store
// without touching disk.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]Row)}
}

// Upsert implements Store.
func (m *MemStore) Upsert(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[row.Name] = row

	return nil
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, name string) (Row, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[name]

	return row, ok, nil
}

// ListAll implements Store.
func (m *MemStore) ListAll(_ context.Context) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Row, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}

	return out, nil
}

// Delete implements Store.
func (m *MemStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, name)

	return nil
}

// Close implements Store.
func (m *MemStore) Close() error {
	return nil
}

var _ Store = (*MemStore)(nil)
