// ABOUTME: In-memory Store implementation for tests and storage-less deployments
// ABOUTME: Supports injected read/write failures and records every write

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryStore is an in-memory Store, Deleter and Lister.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	writes  []Write
	getErr  error
	setErr  error
}

// Write is a single Set call observed by a MemoryStore.
type Write struct {
	Key   string
	Value string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the value for key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return "", m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = memoryEntry{value: value, updatedAt: time.Now().UTC()}
	m.writes = append(m.writes, Write{Key: key, Value: value})
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

// List returns records whose key starts with prefix, ordered by key.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.entries))
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		records = append(records, Record{Key: k, Size: len(e.value), UpdatedAt: e.updatedAt})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// Put seeds a raw value without recording it as a write.
func (m *MemoryStore) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, updatedAt: time.Now().UTC()}
}

// FailGets makes every subsequent Get return err. Pass nil to restore.
func (m *MemoryStore) FailGets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// FailSets makes every subsequent Set return err. Pass nil to restore.
func (m *MemoryStore) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// Writes returns a copy of every successful Set in call order.
func (m *MemoryStore) Writes() []Write {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesFor returns the values written under key in call order.
func (m *MemoryStore) WritesFor(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, w := range m.writes {
		if w.Key == key {
			out = append(out, w.Value)
		}
	}
	return out
}
