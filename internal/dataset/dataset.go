package dataset

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Dataset is a named, immutable collection of records.
type Dataset struct {
	ID          string
	Name        string
	Description string
	Source      string
	Tags        []string
	Records     []Record

	// Revision changes whenever the records behind ID are replaced.
	Revision string
	LoadedAt time.Time
}

// Info is the listing view of a dataset.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RecordCount int      `json:"recordCount"`
	LastUpdated string   `json:"lastUpdated"`
	Tags        []string `json:"tags"`
	Source      string   `json:"source"`
}

// New wraps records into a dataset with a fresh revision. An empty name is
// derived from the ID.
func New(id, name string, records []Record) *Dataset {
	if name == "" {
		name = DisplayName(id)
	}
	return &Dataset{
		ID:          id,
		Name:        name,
		Description: "Dataset for " + id,
		Tags:        []string{},
		Records:     records,
		Revision:    uuid.NewString(),
		LoadedAt:    time.Now(),
	}
}

// Info returns the listing view.
func (d *Dataset) Info() Info {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return Info{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		RecordCount: len(d.Records),
		LastUpdated: d.LoadedAt.Format("2006-01-02"),
		Tags:        tags,
		Source:      d.Source,
	}
}

// DisplayName capitalizes an identifier for listings.
func DisplayName(id string) string {
	if id == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(id)
	return string(unicode.ToUpper(r)) + id[size:]
}
