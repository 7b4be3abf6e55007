package profile

// Summary aggregates type, missingness and cardinality counts.
type Summary struct {
	TotalRecords  int            `json:"totalRecords"`
	UniqueValues  int            `json:"uniqueValues"`
	MissingValues int            `json:"missingValues"`
	DataTypes     map[string]int `json:"dataTypes"`
}

// Series is an ordered list of label/value pairs. Placeholder marks demo data
// that was not computed from the records.
type Series struct {
	Labels      []string  `json:"labels"`
	Values      []float64 `json:"values"`
	Placeholder bool      `json:"placeholder,omitempty"`
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Labels)
}

// Correlation is reserved; profiles currently never contain any.
type Correlation struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// DatasetProfile is the statistical summary rendered as charts.
type DatasetProfile struct {
	Summary      Summary       `json:"summary"`
	Trends       Series        `json:"trends"`
	Distribution Series        `json:"distribution"`
	Correlations []Correlation `json:"correlations"`
}

func emptyProfile() *DatasetProfile {
	return &DatasetProfile{
		Summary:      Summary{DataTypes: map[string]int{}},
		Trends:       Series{Labels: []string{}, Values: []float64{}},
		Distribution: Series{Labels: []string{}, Values: []float64{}},
		Correlations: []Correlation{},
	}
}

// Normalize replaces nil collections with empty ones so a profile decoded
// from a partial document encodes the same way as a computed one.
func (p *DatasetProfile) Normalize() {
	if p.Summary.DataTypes == nil {
		p.Summary.DataTypes = map[string]int{}
	}
	if p.Trends.Labels == nil {
		p.Trends.Labels = []string{}
	}
	if p.Trends.Values == nil {
		p.Trends.Values = []float64{}
	}
	if p.Distribution.Labels == nil {
		p.Distribution.Labels = []string{}
	}
	if p.Distribution.Values == nil {
		p.Distribution.Values = []float64{}
	}
	if p.Correlations == nil {
		p.Correlations = []Correlation{}
	}
}
