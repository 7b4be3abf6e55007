// Package profile derives summary statistics, a numeric trend series and a
// categorical distribution from a collection of records.
package profile

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dataset-explorer/backend/internal/dataset"
)

const (
	// MaxTrendPoints bounds the trend series and the records it samples.
	MaxTrendPoints = 10
	// MaxDistributionEntries bounds the distribution series.
	MaxDistributionEntries = 8
	// NumericThreshold is the share of non-missing values that must parse as
	// numbers for a field to count as numeric.
	NumericThreshold = 0.8
	// CategoricalRatio caps the distinct values of a distribution field
	// relative to the record count.
	CategoricalRatio = 0.5
)

// Placeholder distribution used when no categorical field exists. These are
// fixed demo values, not a computed result.
var (
	PlaceholderCategories = []string{"Category A", "Category B", "Category C"}
	PlaceholderCounts     = []float64{30, 45, 25}
)

// Profiler computes DatasetProfiles. The random source only feeds the
// placeholder trend emitted when no numeric field exists.
type Profiler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithSeed makes the placeholder trend series reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Profiler) {
		p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a Profiler.
func New(opts ...Option) *Profiler {
	now := uint64(time.Now().UnixNano())
	p := &Profiler{rng: rand.New(rand.NewPCG(now, now>>1))}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultProfiler = New()

// Profile profiles records with a shared default Profiler.
func Profile(records []dataset.Record) *DatasetProfile {
	return defaultProfiler.Profile(records)
}

// Profile computes the full profile. It never fails: unparsable values count
// as non-numeric and absent fields as missing.
func (p *Profiler) Profile(records []dataset.Record) *DatasetProfile {
	out := emptyProfile()
	if len(records) == 0 {
		return out
	}

	fields := records[0].Fields()
	out.Summary = summarize(records, fields)
	out.Trends = p.trend(records, fields)
	out.Distribution = distribution(records, fields)
	return out
}

// summarize only considers the fields of the first record. Distinct values of
// every non-numeric field are added into one running UniqueValues total.
func summarize(records []dataset.Record, fields []string) Summary {
	summary := Summary{
		TotalRecords: len(records),
		DataTypes:    make(map[string]int),
	}

	for _, field := range fields {
		nonMissing, numeric := 0, 0
		distinct := make(map[any]struct{})

		for _, rec := range records {
			v, _ := rec.Get(field)
			if dataset.IsMissing(v) {
				continue
			}
			nonMissing++
			if _, ok := dataset.Number(v); ok {
				numeric++
			}
			distinct[valueKey(v)] = struct{}{}
		}

		summary.MissingValues += len(records) - nonMissing

		if nonMissing > 0 && float64(numeric) >= NumericThreshold*float64(nonMissing) {
			summary.DataTypes[field] = nonMissing
		} else {
			summary.UniqueValues += len(distinct)
		}
	}
	return summary
}

func (p *Profiler) trend(records []dataset.Record, fields []string) Series {
	sample := records
	if len(sample) > MaxTrendPoints {
		sample = sample[:MaxTrendPoints]
	}

	field, ok := SelectTrendField(sample, fields)
	if !ok {
		return p.placeholderTrend()
	}

	series := Series{
		Labels: make([]string, len(sample)),
		Values: make([]float64, len(sample)),
	}
	for i, rec := range sample {
		v, _ := rec.Get(field)
		n, _ := dataset.Number(v)
		series.Labels[i] = trendLabel(i)
		series.Values[i] = n
	}
	return series
}

// placeholderTrend is demo data: ten points of pseudo-random values in [0,100).
func (p *Profiler) placeholderTrend() Series {
	p.mu.Lock()
	defer p.mu.Unlock()

	series := Series{
		Labels:      make([]string, MaxTrendPoints),
		Values:      make([]float64, MaxTrendPoints),
		Placeholder: true,
	}
	for i := range series.Labels {
		series.Labels[i] = trendLabel(i)
		series.Values[i] = p.rng.Float64() * 100
	}
	return series
}

func trendLabel(i int) string {
	return fmt.Sprintf("Data Point %d", i+1)
}

func distribution(records []dataset.Record, fields []string) Series {
	field, ok := SelectDistributionField(records, fields)
	if !ok {
		return Series{
			Labels:      append([]string(nil), PlaceholderCategories...),
			Values:      append([]float64(nil), PlaceholderCounts...),
			Placeholder: true,
		}
	}

	type bucket struct {
		label string
		count int
	}
	var buckets []*bucket
	byKey := make(map[any]*bucket)
	for _, rec := range records {
		v, _ := rec.Get(field)
		if dataset.IsMissing(v) {
			continue
		}
		key := valueKey(v)
		b, exists := byKey[key]
		if !exists {
			b = &bucket{label: dataset.FormatValue(v)}
			byKey[key] = b
			buckets = append(buckets, b)
		}
		b.count++
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].count > buckets[j].count
	})
	if len(buckets) > MaxDistributionEntries {
		buckets = buckets[:MaxDistributionEntries]
	}

	series := Series{
		Labels: make([]string, len(buckets)),
		Values: make([]float64, len(buckets)),
	}
	for i, b := range buckets {
		series.Labels[i] = b.label
		series.Values[i] = float64(b.count)
	}
	return series
}

// SelectTrendField returns the first field for which any of the sampled
// records holds a numeric value.
func SelectTrendField(sample []dataset.Record, fields []string) (string, bool) {
	for _, field := range fields {
		for _, rec := range sample {
			v, _ := rec.Get(field)
			if _, ok := dataset.Number(v); ok {
				return field, true
			}
		}
	}
	return "", false
}

// SelectDistributionField returns the first field whose distinct non-missing
// value count d satisfies 1 < d < CategoricalRatio*len(records).
func SelectDistributionField(records []dataset.Record, fields []string) (string, bool) {
	limit := CategoricalRatio * float64(len(records))
	for _, field := range fields {
		distinct := make(map[any]struct{})
		for _, rec := range records {
			v, _ := rec.Get(field)
			if dataset.IsMissing(v) {
				continue
			}
			distinct[valueKey(v)] = struct{}{}
		}
		if d := len(distinct); d > 1 && float64(d) < limit {
			return field, true
		}
	}
	return "", false
}

type (
	compositeKey string
	numberKey    string
)

// valueKey maps a value to a comparable map key. Strings and numbers stay
// distinct ("1" and 1 are different values).
func valueKey(v any) any {
	switch t := v.(type) {
	case string, bool:
		return t
	case float64:
		return numberKey(strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return numberKey(strconv.FormatInt(i, 10))
		}
		if f, err := t.Float64(); err == nil {
			return numberKey(strconv.FormatFloat(f, 'f', -1, 64))
		}
		return numberKey(t.String())
	default:
		return compositeKey(dataset.FormatValue(v))
	}
}
