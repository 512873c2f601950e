package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Index for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	seq     int
	entries map[string]Document
}

var _ Index = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Document)}
}

func (m *Memory) Upsert(_ context.Context, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	marker := fmt.Sprintf("mem-%d", m.seq)
	m.entries[marker] = doc
	return marker, nil
}

func (m *Memory) Remove(_ context.Context, marker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[marker]; !ok {
		return &IndexError{Op: "Remove", Marker: marker, Err: ErrMarkerNotFound}
	}
	delete(m.entries, marker)
	return nil
}

// Get returns the stored document for a marker, for test assertions.
func (m *Memory) Get(marker string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.entries[marker]
	return doc, ok
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Paths returns the set of live entry paths, for test assertions.
func (m *Memory) Paths() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.entries))
	for _, doc := range m.entries {
		out[doc.Path] = true
	}
	return out
}
