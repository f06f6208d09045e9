package models

import "time"

// MemoryEntry is a single durable fact in the memory adapter. Keys are
// unique; set/store upsert by key and preserve CreatedAt across updates.
type MemoryEntry struct {
	Key         string         `json:"key"`
	Value       string         `json:"value"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	AccessedAt  time.Time      `json:"accessed_at"`
	AccessCount int            `json:"access_count"`

	// Embedding is populated by an attached embedder at store time.
	// Not serialized; backends persist it in whatever native form they use.
	Embedding []float32 `json:"-"`
}

// TimeRange bounds a recall query by CreatedAt.
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// RecallOptions configures a memory recall query.
type RecallOptions struct {
	Limit              int
	TimeRange          *TimeRange
	RelevanceThreshold float64
}

// ScoredEntry pairs a MemoryEntry with the fused relevance score that
// ranked it inside a recall call.
type ScoredEntry struct {
	Entry *MemoryEntry
	Score float64
}
