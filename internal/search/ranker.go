package search

import (
	"math"
	"sort"
)

// Ranked is a position in the ranked input together with its score.
type Ranked struct {
	Index int
	Score float64
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Vectors of different length, or with a zero norm, score 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every vector against the query and returns the best topN by
// descending score. Equal scores keep their input order. A non-positive topN
// yields no results.
func Rank(query Vector, vectors []Vector, topN int) []Ranked {
	if topN <= 0 || len(vectors) == 0 {
		return []Ranked{}
	}

	results := make([]Ranked, len(vectors))
	for i, v := range vectors {
		results[i] = Ranked{Index: i, Score: CosineSimilarity(query, v)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results
}
