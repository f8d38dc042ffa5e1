package tokenstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps the record in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory returns a Store that forgets everything when the process exits.
func NewMemory(opts ...Option) *Store {
	return New(&MemoryBackend{}, opts...)
}

func (b *MemoryBackend) Load(context.Context) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBackend) Save(_ context.Context, entries map[string]string) error {
	next := make(map[string]string, len(entries))
	for k, v := range entries {
		next[k] = v
	}
	b.mu.Lock()
	b.entries = next
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(context.Context) error {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
	return nil
}
