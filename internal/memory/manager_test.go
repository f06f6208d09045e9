package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/memory/backend/memstore"
	"github.com/nexuscore/agentrt/pkg/models"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()

	if err := m.Set(ctx, "favorite_color", "teal", map[string]any{"source": "test"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entry, ok, err := m.Get(ctx, "favorite_color")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if entry.Value != "teal" {
		t.Fatalf("want teal, got %q", entry.Value)
	}
}

func TestRecallRanksLexicalMatchFirst(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()

	_ = m.Set(ctx, "a", "the user prefers dark roast coffee in the morning", nil)
	_ = m.Set(ctx, "b", "the user's favorite programming language is Go", nil)
	_ = m.Set(ctx, "c", "the user dislikes loud music", nil)

	results, err := m.Recall(ctx, "coffee morning routine", models.RecallOptions{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Entry.Key != "a" {
		t.Fatalf("want entry 'a' ranked first, got %q (results=%+v)", results[0].Entry.Key, results)
	}
}

func TestRecallTemporalDecayFavorsRecentTie(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()

	old := &models.MemoryEntry{Key: "old", Value: "prefers tea over coffee", CreatedAt: time.Now().AddDate(0, 0, -90)}
	recent := &models.MemoryEntry{Key: "recent", Value: "prefers tea over coffee", CreatedAt: time.Now()}
	if err := m.backend.Set(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := m.backend.Set(ctx, recent); err != nil {
		t.Fatal(err)
	}

	results, err := m.Recall(ctx, "tea coffee", models.RecallOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].Entry.Key != "recent" {
		t.Fatalf("want 'recent' ranked above 'old' due to temporal decay, got order %+v", results)
	}
}

func TestRecallRespectsTimeRange(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()

	outOfRange := &models.MemoryEntry{Key: "ancient", Value: "project kickoff notes", CreatedAt: time.Now().AddDate(-1, 0, 0)}
	inRange := &models.MemoryEntry{Key: "fresh", Value: "project kickoff notes", CreatedAt: time.Now()}
	_ = m.backend.Set(ctx, outOfRange)
	_ = m.backend.Set(ctx, inRange)

	results, err := m.Recall(ctx, "project kickoff", models.RecallOptions{
		TimeRange: &models.TimeRange{Since: time.Now().AddDate(0, 0, -7)},
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, r := range results {
		if r.Entry.Key == "ancient" {
			t.Fatalf("time range should have excluded 'ancient', got %+v", results)
		}
	}
}

func TestCompileRelevantDefaultLimitFive(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_ = m.Set(ctx, string(rune('a'+i)), "recipe for banana bread with walnuts", nil)
	}
	block, err := m.CompileRelevant(ctx, "banana bread recipe")
	if err != nil {
		t.Fatalf("CompileRelevant: %v", err)
	}
	lines := 0
	for _, c := range block {
		if c == '\n' {
			lines++
		}
	}
	if lines > DefaultCompileLimit {
		t.Fatalf("want at most %d lines, got %d: %q", DefaultCompileLimit, lines, block)
	}
}

// scriptedEmbedder returns a canned vector per exact text, falling back to
// a zero-similarity direction for anything unscripted.
type scriptedEmbedder struct {
	vectors map[string][]float32
}

func (e scriptedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (scriptedEmbedder) Name() string      { return "scripted" }
func (scriptedEmbedder) Dimension() int    { return 3 }
func (scriptedEmbedder) MaxBatchSize() int { return 16 }

func TestRecallVectorFusionSurfacesSemanticMatch(t *testing.T) {
	embedder := scriptedEmbedder{vectors: map[string][]float32{
		"deploys happen on fridays": {1, 0, 0},
		"standup is at nine":        {0, 1, 0},
		"release cadence":           {0.9, 0.1, 0},
	}}
	m := NewManager(memstore.New(), embedder)
	ctx := context.Background()

	_ = m.Set(ctx, "deploy", "deploys happen on fridays", nil)
	_ = m.Set(ctx, "standup", "standup is at nine", nil)

	// No lexical overlap between the query and either entry: only the
	// vector list ranks, and the fused order must follow it.
	results, err := m.Recall(ctx, "release cadence", models.RecallOptions{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected vector recall to surface results without lexical overlap")
	}
	if results[0].Entry.Key != "deploy" {
		t.Fatalf("want 'deploy' ranked first by cosine similarity, got %q", results[0].Entry.Key)
	}
}

func TestRememberToolStoresThroughManager(t *testing.T) {
	m := NewManager(memstore.New(), nil)
	ctx := context.Background()
	if err := m.Remember(ctx, "k", "v"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	entry, ok, _ := m.Get(ctx, "k")
	if !ok || entry.Value != "v" {
		t.Fatalf("expected stored entry, got ok=%v entry=%+v", ok, entry)
	}
}
