// Package memory implements the long-term memory adapter: a durable
// key/value fact store with hybrid lexical+vector recall.
//
// Recall fuses two independently-ranked lists — BM25 with temporal decay,
// and vector cosine similarity when an embedder is configured — via
// Reciprocal Rank Fusion (k=60), then diversifies the fused ranking with
// Maximal Marginal Relevance (lambda=0.7) before truncating to the caller's
// limit. Embeddings are optional: with no embedder attached, recall falls
// back to BM25-with-decay ranking alone, still passed through MMR so
// near-duplicate facts don't crowd out distinct ones.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/memory/backend"
	"github.com/nexuscore/agentrt/internal/memory/embeddings"
	"github.com/nexuscore/agentrt/pkg/models"
)

// DefaultRecallLimit is the Recall limit used when a caller's
// RecallOptions.Limit is zero or negative; DefaultCompileLimit is the
// fixed limit CompileRelevant recalls with.
const (
	DefaultRecallLimit  = 10
	DefaultCompileLimit = 5
)

// Manager is the memory adapter: get/set/remove/entries/compile/store/
// recall/compile_relevant, backed by a pluggable Backend and an optional
// embedding Provider.
type Manager struct {
	backend  backend.Backend
	embedder embeddings.Provider
	cache    *embeddingCache

	mu sync.Mutex
}

// NewManager constructs a memory adapter over the given backend. embedder
// may be nil — vector recall is then simply skipped and BM25+decay+MMR
// alone determines ranking.
func NewManager(b backend.Backend, embedder embeddings.Provider) *Manager {
	return &Manager{
		backend:  b,
		embedder: embedder,
		cache:    newEmbeddingCache(1000),
	}
}

// Get returns the entry stored at key, bumping its AccessedAt/AccessCount.
func (m *Manager) Get(ctx context.Context, key string) (*models.MemoryEntry, bool, error) {
	entry, ok, err := m.backend.Get(ctx, key)
	if err != nil || !ok {
		return entry, ok, err
	}
	_ = m.backend.Touch(ctx, key)
	entry.AccessCount++
	return entry, true, nil
}

// Set upserts an entry at key, embedding its value if an embedder is
// configured. CreatedAt is preserved across updates by the backend.
func (m *Manager) Set(ctx context.Context, key, value string, metadata map[string]any) error {
	entry := &models.MemoryEntry{Key: key, Value: value, Metadata: metadata}
	if m.embedder != nil {
		vec, err := m.embedder.Embed(ctx, value)
		if err != nil {
			return &memoryOpError{op: "set", cause: err}
		}
		entry.Embedding = vec
	}
	if err := m.backend.Set(ctx, entry); err != nil {
		return &memoryOpError{op: "set", cause: err}
	}
	return nil
}

// Remove deletes the entry at key.
func (m *Manager) Remove(ctx context.Context, key string) error {
	return m.backend.Remove(ctx, key)
}

// Entries returns every stored entry.
func (m *Manager) Entries(ctx context.Context) ([]*models.MemoryEntry, error) {
	return m.backend.Entries(ctx)
}

// Store is the "remember" tool's entry point: set with no metadata.
func (m *Manager) Store(ctx context.Context, key, value string) error {
	return m.Set(ctx, key, value, nil)
}

// Recall runs the full hybrid ranking pipeline against query and returns
// up to opts.Limit (default DefaultRecallLimit) scored entries.
func (m *Manager) Recall(ctx context.Context, query string, opts models.RecallOptions) ([]models.ScoredEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	entries, err := m.backend.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: recall: %w", err)
	}
	entries = filterByTimeRange(entries, opts.TimeRange)
	if len(entries) == 0 {
		return nil, nil
	}

	now := time.Now()
	byID := make(map[string]*models.MemoryEntry, len(entries))
	texts := make([]string, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		byID[e.Key] = e
		texts[i] = e.Value
		ids[i] = e.Key
	}

	bm25Scores := newBM25Index(ids, texts).score(query)
	decayed := make(map[string]float64, len(bm25Scores))
	for id, score := range bm25Scores {
		decayed[id] = score * temporalDecay(byID[id].AccessedAt, now)
	}
	lexicalRanked := sortByScoreDesc(decayed)

	var rankedLists [][]string
	if len(lexicalRanked) > 0 {
		rankedLists = append(rankedLists, lexicalRanked)
	}

	if m.embedder != nil && query != "" {
		queryVec, err := m.embeddedQuery(ctx, query)
		if err != nil {
			return nil, &memoryOpError{op: "recall", cause: err}
		}
		vectorScores := make(map[string]float64)
		for id, e := range byID {
			if len(e.Embedding) == 0 || len(e.Embedding) != len(queryVec) {
				continue
			}
			vectorScores[id] = cosine(e.Embedding, queryVec)
		}
		if vectorRanked := sortByScoreDesc(vectorScores); len(vectorRanked) > 0 {
			rankedLists = append(rankedLists, vectorRanked)
		}
	}

	if len(rankedLists) == 0 {
		return nil, nil
	}

	fused := reciprocalRankFusion(rankedLists...)
	var candidates []models.ScoredEntry
	for _, id := range sortByScoreDesc(fused) {
		score := fused[id]
		if opts.RelevanceThreshold > 0 && score < opts.RelevanceThreshold {
			continue
		}
		candidates = append(candidates, models.ScoredEntry{Entry: byID[id], Score: score})
	}

	selected := mmrSelect(candidates, limit)
	for _, s := range selected {
		_ = m.backend.Touch(ctx, s.Entry.Key)
	}
	return selected, nil
}

// Compile renders entries as a flat, newline-delimited block suitable for
// direct prompt injection (no ranking; used when the full fact set, not a
// relevance-scored subset, belongs in context).
func (m *Manager) Compile(ctx context.Context) (string, error) {
	entries, err := m.backend.Entries(ctx)
	if err != nil {
		return "", fmt.Errorf("memory: compile: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return renderEntries(entries), nil
}

// CompileRelevant recalls against query (limit DefaultCompileLimit) and
// renders the result for prompt injection. Satisfies
// agent.MemorySource.
func (m *Manager) CompileRelevant(ctx context.Context, query string) (string, error) {
	scored, err := m.Recall(ctx, query, models.RecallOptions{Limit: DefaultCompileLimit})
	if err != nil {
		return "", err
	}
	entries := make([]*models.MemoryEntry, 0, len(scored))
	for _, s := range scored {
		entries = append(entries, s.Entry)
	}
	return renderEntries(entries), nil
}

// Remember satisfies agent.MemoryAdapter, backing the automatic "remember"
// tool.
func (m *Manager) Remember(ctx context.Context, key, value string) error {
	return m.Store(ctx, key, value)
}

func (m *Manager) embeddedQuery(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := m.cache.get(query); ok {
		return vec, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	m.cache.set(query, vec)
	return vec, nil
}

func filterByTimeRange(entries []*models.MemoryEntry, tr *models.TimeRange) []*models.MemoryEntry {
	if tr == nil {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if !tr.Since.IsZero() && e.CreatedAt.Before(tr.Since) {
			continue
		}
		if !tr.Until.IsZero() && e.CreatedAt.After(tr.Until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func renderEntries(entries []*models.MemoryEntry) string {
	var out string
	for _, e := range entries {
		out += fmt.Sprintf("- %s: %s\n", e.Key, e.Value)
	}
	return out
}

// Close releases the underlying backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

type memoryOpError struct {
	op    string
	cause error
}

func (e *memoryOpError) Error() string { return fmt.Sprintf("memory: %s: %v", e.op, e.cause) }
func (e *memoryOpError) Unwrap() error { return e.cause }

// embeddingCache is a small FIFO cache for query embeddings, avoiding a
// repeat embedding call for an identical recall query within a burst of
// calls against the same agent.
type embeddingCache struct {
	mu       sync.RWMutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{items: make(map[string][]float32), capacity: capacity}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
