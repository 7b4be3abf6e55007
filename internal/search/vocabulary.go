package search

// Vocabulary is the set of distinct tokens of a corpus. Each term owns a
// fixed position in every Vector built from this vocabulary. A Vocabulary is
// never modified; rebuilding produces a new one.
type Vocabulary struct {
	terms []string
	index map[string]int
}

// BuildVocabulary collects every distinct token across texts in first-seen order.
func BuildVocabulary(texts []string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int)}
	for _, text := range texts {
		for _, token := range Tokenize(text) {
			if _, exists := v.index[token]; !exists {
				v.index[token] = len(v.terms)
				v.terms = append(v.terms, token)
			}
		}
	}
	return v
}

// Len returns the number of terms, which is also the length of every vector.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Terms returns the terms in vector position order.
func (v *Vocabulary) Terms() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Index returns the vector position of a term.
func (v *Vocabulary) Index(term string) (int, bool) {
	if v == nil {
		return 0, false
	}
	i, ok := v.index[term]
	return i, ok
}
