package memory

import "sort"

// rrfK is the Reciprocal Rank Fusion constant: score(e) = sum(1/(k+rank))
// over every ranked list e appears in, 1-indexed rank. Fixed at 60, the
// standard value from the original RRF paper — this is a plain sum, not a
// weighted blend; weighting the lexical and vector lists against each other
// is explicitly out of scope here.
const rrfK = 60

// rankOf returns the 1-indexed rank of each id in a descending-score list.
func rankOf(ranked []string) map[string]int {
	out := make(map[string]int, len(ranked))
	for i, id := range ranked {
		out[id] = i + 1
	}
	return out
}

// sortByScoreDesc returns the ids of scores sorted by score descending,
// ties broken by id ascending for determinism.
func sortByScoreDesc(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// reciprocalRankFusion merges any number of ranked lists into one fused
// score per id: every list an id fails to appear in simply contributes
// nothing to its sum (no zero-rank substitution).
func reciprocalRankFusion(rankedLists ...[]string) map[string]float64 {
	fused := make(map[string]float64)
	for _, ranked := range rankedLists {
		ranks := rankOf(ranked)
		for id, rank := range ranks {
			fused[id] += 1.0 / float64(rrfK+rank)
		}
	}
	return fused
}
