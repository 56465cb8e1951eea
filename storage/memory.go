package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps records in a map. Values over the limit are refused,
// just like a real size-capped backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	limit   int
	records map[string]string
}

// NewMemoryBackend creates an empty backend with the given per-value limit.
func NewMemoryBackend(limit int) *MemoryBackend {
	return &MemoryBackend{limit: limit, records: make(map[string]string)}
}

func (m *MemoryBackend) Put(_ context.Context, key, value string) error {
	if len(value) > m.limit {
		return fmt.Errorf("memory: value for %q is %d bytes, limit %d", key, len(value), m.limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = value
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[key]
	return v, ok, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryBackend) MaxValueSize() int { return m.limit }

func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of raw records held.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
