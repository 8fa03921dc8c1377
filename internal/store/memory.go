package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ Adapter[any] = (*Memory[any])(nil)

// Memory keeps encoded records in a map. Values are stored as JSON so callers
// never share memory with the store, matching the durable backends.
type Memory[T any] struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemory creates an empty Memory adapter.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{records: make(map[string][]byte)}
}

// WaitForInit is a no-op.
func (m *Memory[T]) WaitForInit(_ context.Context) error { return nil }

// HasValue reports whether key has a record or tombstone.
func (m *Memory[T]) HasValue(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok, nil
}

// ReadValue decodes the record for key.
func (m *Memory[T]) ReadValue(_ context.Context, key string) (T, error) {
	var value T
	m.mu.Lock()
	data, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return value, fmt.Errorf("reading %s: %w", key, ErrNotFound)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decoding %s: %w", key, err)
	}
	return value, nil
}

// WriteValue stores value under key.
func (m *Memory[T]) WriteValue(_ context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.mu.Lock()
	m.records[key] = data
	m.mu.Unlock()
	return nil
}

// DeleteValue stores a null tombstone under key.
func (m *Memory[T]) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	m.records[key] = []byte("null")
	m.mu.Unlock()
	return nil
}
