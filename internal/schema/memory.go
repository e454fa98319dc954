package schema

import (
	"context"
	"sync"
)

type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[Key][]TableStructure
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[Key][]TableStructure{}}
}

func (b *MemoryBackend) Get(_ context.Context, key Key) ([]TableStructure, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tables, ok := b.entries[key]
	return tables, ok, nil
}

func (b *MemoryBackend) Put(_ context.Context, key Key, tables []TableStructure) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = cloneTables(tables)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}
