package memory

import (
	"math"
	"time"
)

// temporalDecayHalfLifeDays is the half-life applied to lexical relevance:
// a fact's BM25 weight halves every 30 days since it was last accessed, so
// long-unread memories stop crowding out fresher, equally-matching ones.
const temporalDecayHalfLifeDays = 30.0

// temporalDecay returns exp(-ln(2) * age_days / halfLife), in (0, 1], where
// age_days is measured from accessedAt, not the entry's creation time.
func temporalDecay(accessedAt, now time.Time) float64 {
	ageDays := now.Sub(accessedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / temporalDecayHalfLifeDays)
}
