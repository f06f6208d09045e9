package memory

import (
	"math"

	"github.com/nexuscore/agentrt/pkg/models"
)

// mmrLambda balances relevance against diversity: 0.7 favors relevance,
// leaving 0.3 weight on similarity-to-already-selected-results.
const mmrLambda = 0.7

// similarity returns a similarity between two entries: cosine over
// embeddings when both carry one (in [-1,1]), otherwise Jaccard over tokenized value
// text (in [0,1]) — the fallback keeps MMR diversification meaningful even when no
// embedder is configured.
func similarity(a, b *models.MemoryEntry) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		return cosine(a.Embedding, b.Embedding)
	}
	return jaccard(tokenize(a.Value), tokenize(b.Value))
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	var intersection int
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// mmrSelect greedily picks up to limit entries from candidates (ordered by
// descending relevance score, highest first), at each step trading off
// relevance against redundancy with entries already chosen.
func mmrSelect(candidates []models.ScoredEntry, limit int) []models.ScoredEntry {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	remaining := append([]models.ScoredEntry(nil), candidates...)
	var selected []models.ScoredEntry

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, chosen := range selected {
				if s := similarity(cand.Entry, chosen.Entry); s > maxSim {
					maxSim = s
				}
			}
			mmrScore := mmrLambda*cand.Score - (1-mmrLambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
