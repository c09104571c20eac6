package records

import (
	"context"
	"sync"

	"github.com/joblink/joblink-etl/internal/audit"
)

// Memory is an in-process Store for tests and the resolve debug command.
type Memory struct {
	mu      sync.RWMutex
	rows    map[Key]map[string]string
	profile map[string]string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows:    make(map[Key]map[string]string),
		profile: make(map[string]string),
	}
}

// SetProfile replaces the profile map.
func (m *Memory) SetProfile(profile map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = make(map[string]string, len(profile))
	for k, v := range profile {
		m.profile[k] = v
	}
}

// Field implements Store.
func (m *Memory) Field(_ context.Context, key Key, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[key][field], nil
}

// SetField implements Store.
func (m *Memory) SetField(_ context.Context, key Key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		row = make(map[string]string)
		m.rows[key] = row
	}
	row[field] = value
	return nil
}

// AppendAudit implements Store using the ledger's replace-by-kind upsert.
func (m *Memory) AppendAudit(_ context.Context, key Key, token audit.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		row = make(map[string]string)
		m.rows[key] = row
	}
	row[FieldSource] = audit.Upsert(row[FieldSource], token)
	return nil
}

// Profile implements Store.
func (m *Memory) Profile(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.profile))
	for k, v := range m.profile {
		out[k] = v
	}
	return out, nil
}
