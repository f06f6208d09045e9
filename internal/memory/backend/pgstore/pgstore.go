// Package pgstore is a Postgres-backed Backend, for deployments that want
// durable memory across process restarts. Entries are stored in a single
// table with a full-text column for BM25-equivalent lexical filtering and
// a float array column for embeddings; the memory package's own BM25/RRF/MMR
// pipeline runs in Go over whatever Entries returns, so this backend's SQL
// stays a plain CRUD surface rather than reimplementing ranking server-side.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nexuscore/agentrt/internal/memory/backend"
	"github.com/nexuscore/agentrt/pkg/models"
)

type Backend struct {
	db *sql.DB
}

var _ backend.Backend = (*Backend)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	key          TEXT PRIMARY KEY,
	value        TEXT NOT NULL,
	metadata     JSONB NOT NULL DEFAULT '{}',
	embedding    DOUBLE PRECISION[],
	content_tsv  TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', value)) STORED,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	accessed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS memory_entries_tsv_idx ON memory_entries USING GIN (content_tsv);
`

// Open connects to dsn and ensures the memory_entries table exists.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

func encodeEmbedding(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func decodeEmbedding(v []float64) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func (b *Backend) Get(ctx context.Context, key string) (*models.MemoryEntry, bool, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT key, value, metadata, embedding, created_at, accessed_at, access_count
		FROM memory_entries WHERE key = $1`, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get: %w", err)
	}
	return entry, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.MemoryEntry, error) {
	var (
		metadataRaw []byte
		embedding   []float64
		e           models.MemoryEntry
	)
	if err := row.Scan(&e.Key, &e.Value, &metadataRaw, pq.Array(&embedding), &e.CreatedAt, &e.AccessedAt, &e.AccessCount); err != nil {
		return nil, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &e.Metadata)
	}
	e.Embedding = decodeEmbedding(embedding)
	return &e, nil
}

func (b *Backend) Set(ctx context.Context, entry *models.MemoryEntry) error {
	metadataRaw, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshal metadata: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO memory_entries (key, value, metadata, embedding, created_at, accessed_at, access_count)
		VALUES ($1, $2, $3, $4, $5, $5, 0)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		entry.Key, entry.Value, metadataRaw, pq.Array(encodeEmbedding(entry.Embedding)), created)
	if err != nil {
		return fmt.Errorf("pgstore: set: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("pgstore: remove: %w", err)
	}
	return nil
}

func (b *Backend) Entries(ctx context.Context) ([]*models.MemoryEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key, value, metadata, embedding, created_at, accessed_at, access_count
		FROM memory_entries`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: entries: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) Touch(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE memory_entries SET accessed_at = now(), access_count = access_count + 1
		WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("pgstore: touch: %w", err)
	}
	return nil
}

func (b *Backend) Close() error { return b.db.Close() }
