package memory

import (
	"math"
	"regexp"
	"strings"
)

// bm25 is a small in-memory Okapi BM25 scorer over entry value text. No
// full-text search library in the ecosystem's dependency surface covers
// this without a running database server (the nearest equivalent, Postgres
// ts_rank_cd, requires a live connection); scoring a few hundred in-memory
// entries is cheap enough to do directly.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

type bm25Doc struct {
	id     string
	tokens []string
	tf     map[string]int
}

// bm25Index scores a fixed corpus of documents against a query, using
// standard BM25 with term frequency saturation (k1) and length
// normalization (b) against the corpus's average document length.
type bm25Index struct {
	docs    []bm25Doc
	df      map[string]int // document frequency per term
	avgLen  float64
	n       int
}

func newBM25Index(ids []string, texts []string) *bm25Index {
	idx := &bm25Index{df: make(map[string]int)}
	var totalLen int
	for i, text := range texts {
		tokens := tokenize(text)
		tf := make(map[string]int, len(tokens))
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				idx.df[tok]++
			}
		}
		idx.docs = append(idx.docs, bm25Doc{id: ids[i], tokens: tokens, tf: tf})
		totalLen += len(tokens)
	}
	idx.n = len(idx.docs)
	if idx.n > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.n)
	}
	return idx
}

// score returns, for each document, its BM25 score against query. Documents
// scoring exactly 0 (no query term overlap) are omitted.
func (idx *bm25Index) score(query string) map[string]float64 {
	queryTokens := tokenize(query)
	scores := make(map[string]float64)
	if idx.n == 0 || len(queryTokens) == 0 {
		return scores
	}

	idf := make(map[string]float64, len(queryTokens))
	for _, qt := range queryTokens {
		df := idx.df[qt]
		// idf of the form log(1 + (N-df+0.5)/(df+0.5)), which stays
		// positive even for terms present in most of the corpus.
		idf[qt] = math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
	}

	for _, doc := range idx.docs {
		docLen := float64(len(doc.tokens))
		var score float64
		for _, qt := range queryTokens {
			tf, ok := doc.tf[qt]
			if !ok {
				continue
			}
			numerator := float64(tf) * (bm25K1 + 1)
			denominator := float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/idx.avgLen)
			score += idf[qt] * numerator / denominator
		}
		if score > 0 {
			scores[doc.id] = score
		}
	}
	return scores
}
