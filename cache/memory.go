package cache

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]map[string][]byte),
	}
}

func (m *MemoryBackend) Variants(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	variants := m.entries[prefix]
	entries := make([]Entry, 0, len(variants))
	for key, bytes := range variants {
		entries = append(entries, Entry{Key: key, Bytes: bytes})
	}
	return entries, nil
}

func (m *MemoryBackend) Put(_ context.Context, prefix, key string, bytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	variants, ok := m.entries[prefix]
	if !ok {
		variants = make(map[string][]byte)
		m.entries[prefix] = variants
	}
	variants[key] = append([]byte(nil), bytes...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if variants, ok := m.entries[prefix]; ok {
		delete(variants, key)
		if len(variants) == 0 {
			delete(m.entries, prefix)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, variants := range m.entries {
		n += len(variants)
	}
	return n
}

func (m *MemoryBackend) Close() error {
	return nil
}
