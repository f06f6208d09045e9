// Package backend provides storage backend interfaces for the long-term
// memory adapter: a durable key/value store of entries, each optionally
// carrying an embedding for vector recall.
package backend

import (
	"context"

	"github.com/nexuscore/agentrt/pkg/models"
)

// Backend persists memory entries keyed by Key. Implementations need not
// know about BM25, decay, or fusion — those live in the memory package and
// operate on whatever Entries returns.
type Backend interface {
	// Get returns the entry for key, or ok=false if absent.
	Get(ctx context.Context, key string) (*models.MemoryEntry, bool, error)

	// Set inserts or replaces the entry at key.
	Set(ctx context.Context, entry *models.MemoryEntry) error

	// Remove deletes the entry at key, if present.
	Remove(ctx context.Context, key string) error

	// Entries returns every stored entry, in no particular order.
	Entries(ctx context.Context) ([]*models.MemoryEntry, error)

	// Touch records an access (accessed_at, access_count) against key.
	Touch(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
