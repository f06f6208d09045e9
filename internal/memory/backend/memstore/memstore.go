// Package memstore is the in-process Backend implementation: every entry
// lives only for the runtime's lifetime, matching the memory adapter's own
// Non-goal of durable persistence by default.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/memory/backend"
	"github.com/nexuscore/agentrt/pkg/models"
)

type Backend struct {
	mu      sync.RWMutex
	entries map[string]*models.MemoryEntry
}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{entries: make(map[string]*models.MemoryEntry)}
}

func (b *Backend) Get(_ context.Context, key string) (*models.MemoryEntry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	clone := *e
	return &clone, true, nil
}

func (b *Backend) Set(_ context.Context, entry *models.MemoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *entry
	if existing, ok := b.entries[entry.Key]; ok {
		clone.CreatedAt = existing.CreatedAt
		clone.AccessedAt = existing.AccessedAt
		clone.AccessCount = existing.AccessCount
	} else {
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		clone.AccessedAt = clone.CreatedAt
	}
	b.entries[entry.Key] = &clone
	return nil
}

func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *Backend) Entries(_ context.Context) ([]*models.MemoryEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.MemoryEntry, 0, len(b.entries))
	for _, e := range b.entries {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (b *Backend) Touch(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil
	}
	e.AccessedAt = time.Now()
	e.AccessCount++
	return nil
}

func (b *Backend) Close() error { return nil }
