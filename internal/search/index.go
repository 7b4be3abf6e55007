package search

import (
	"github.com/dataset-explorer/backend/internal/dataset"
)

// Document is one vectorized record of the text field.
type Document struct {
	RecordIndex int
	Text        string
	Vector      Vector
}

// SimilarityResult pairs a record with its similarity to a query.
type SimilarityResult struct {
	Record      dataset.Record `json:"record"`
	RecordIndex int            `json:"recordIndex"`
	Text        string         `json:"text"`
	Score       float64        `json:"score"`
}

// Index is an immutable snapshot of a vocabulary and the vectors built from
// it. It is rebuilt as a whole whenever the records change.
type Index struct {
	TextField  string
	Vocabulary *Vocabulary
	Documents  []Document

	records []dataset.Record
}

// SelectTextField picks the first field of the first record whose value is a
// string. Only this one field is ever vectorized.
func SelectTextField(records []dataset.Record) (string, bool) {
	if len(records) == 0 {
		return "", false
	}
	first := records[0]
	for _, name := range first.Fields() {
		if v, _ := first.Get(name); isString(v) {
			return name, true
		}
	}
	return "", false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// BuildIndex vectorizes the text field of every record that has one. The
// returned index is empty when no text field exists.
func BuildIndex(records []dataset.Record) *Index {
	ix := &Index{records: records}

	field, ok := SelectTextField(records)
	if !ok {
		ix.Vocabulary = BuildVocabulary(nil)
		return ix
	}
	ix.TextField = field

	var texts []string
	for i, rec := range records {
		v, present := rec.Get(field)
		if !present || v == nil {
			continue
		}
		text := dataset.FormatValue(v)
		ix.Documents = append(ix.Documents, Document{RecordIndex: i, Text: text})
		texts = append(texts, text)
	}

	ix.Vocabulary = BuildVocabulary(texts)
	for i := range ix.Documents {
		ix.Documents[i].Vector = Vectorize(ix.Documents[i].Text, ix.Vocabulary)
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.Documents)
}

// Search vectorizes the query and ranks the cached document vectors.
func (ix *Index) Search(query string, topN int) []SimilarityResult {
	queryVector := Vectorize(query, ix.Vocabulary)

	vectors := make([]Vector, len(ix.Documents))
	for i, doc := range ix.Documents {
		vectors[i] = doc.Vector
	}

	ranked := Rank(queryVector, vectors, topN)
	results := make([]SimilarityResult, len(ranked))
	for i, r := range ranked {
		doc := ix.Documents[r.Index]
		results[i] = SimilarityResult{
			Record:      ix.records[doc.RecordIndex],
			RecordIndex: doc.RecordIndex,
			Text:        doc.Text,
			Score:       r.Score,
		}
	}
	return results
}
