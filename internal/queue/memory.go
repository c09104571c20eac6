package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used in tests and by the resolve
// debug command.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

// NewMemoryStore builds an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// EnqueueIfAbsent implements Store.
func (m *MemoryStore) EnqueueIfAbsent(_ context.Context, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.Queue == e.Queue && existing.OwnerKey == e.OwnerKey &&
			existing.RowID == e.RowID && live(existing.Status) {
			return false, nil
		}
	}
	e.ID = m.nextID
	m.nextID++
	e.Status = StatusQueued
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
	return true, nil
}

// ListQueued implements Store. Entries keep insertion order, so a prefix
// scan is oldest-first.
func (m *MemoryStore) ListQueued(_ context.Context, queue Name, max int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Queue == queue && e.Status == StatusQueued {
			out = append(out, e)
			if len(out) >= max {
				break
			}
		}
	}
	return out, nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// SetError implements Store.
func (m *MemoryStore) SetError(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].Status = StatusError
			m.entries[i].LastError = msg
			m.entries[i].Tries++
			return nil
		}
	}
	return nil
}

// Depth implements Store.
func (m *MemoryStore) Depth(_ context.Context, queue Name) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Queue == queue && e.Status == StatusQueued {
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
