package search

import "math"

// Vector is a term-frequency vector aligned to a Vocabulary.
type Vector []int

// Vectorize counts how often each vocabulary term occurs in text. Tokens
// outside the vocabulary are ignored. The result always has vocab.Len()
// entries.
func Vectorize(text string, vocab *Vocabulary) Vector {
	vector := make(Vector, vocab.Len())
	if vocab.Len() == 0 {
		return vector
	}

	tf := make(map[string]int)
	for _, token := range Tokenize(text) {
		tf[token]++
	}

	for token, count := range tf {
		if idx, exists := vocab.Index(token); exists {
			vector[idx] = count
		}
	}
	return vector
}

// Norm returns the Euclidean length of the vector.
func (v Vector) Norm() float64 {
	var sum float64
	for _, c := range v {
		sum += float64(c) * float64(c)
	}
	return math.Sqrt(sum)
}
