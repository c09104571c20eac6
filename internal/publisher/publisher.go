// Package publisher emits resolution events to an external bus. Publishing
// is optional and always best effort from the scheduler's point of view.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event is one published payload, retained by the memory publisher for
// tests and the debug API.
type Event struct {
	Topic   string
	Payload []byte
}

// Memory collects published events in-process.
type Memory struct {
	mu     sync.Mutex
	events []Event
	nextID int
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish marshals the payload and records it.
func (m *Memory) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Topic: topic, Payload: data})
	m.nextID++
	return fmt.Sprintf("mem-%d", m.nextID), nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
