package dataset_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataset-explorer/backend/internal/dataset"
)

func TestNewRecord_KeepsDeclarationOrder(t *testing.T) {
	rec := dataset.NewRecord(
		dataset.Field{Name: "b", Value: "x"},
		dataset.Field{Name: "a", Value: 1.0},
		dataset.Field{Name: "b", Value: "y"},
	)

	assert.Equal(t, []string{"b", "a"}, rec.Fields())
	v, ok := rec.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "y", v)

	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestRecord_JSONRoundTripPreservesOrder(t *testing.T) {
	input := `{"zeta":"last","alpha":2,"mid":null,"nested":{"k":[1,2]}}`

	var rec dataset.Record
	require.NoError(t, json.Unmarshal([]byte(input), &rec))
	assert.Equal(t, []string{"zeta", "alpha", "mid", "nested"}, rec.Fields())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.True(t, strings.HasPrefix(string(out), `{"zeta":`))
}

func TestRecord_LargeIntegersSurviveRoundTrip(t *testing.T) {
	input := `{"id":9007199254740993,"ratio":0.1}`

	var rec dataset.Record
	require.NoError(t, json.Unmarshal([]byte(input), &rec))

	v, _ := rec.Get("id")
	assert.Equal(t, "9007199254740993", dataset.FormatValue(v))
	n, ok := dataset.Number(v)
	assert.True(t, ok)
	assert.Equal(t, 9007199254740992.0, n)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestRecord_UnmarshalRejectsNonObject(t *testing.T) {
	var rec dataset.Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`null`), &rec))
}

func TestIsMissing(t *testing.T) {
	assert.True(t, dataset.IsMissing(nil))
	assert.True(t, dataset.IsMissing(""))
	assert.False(t, dataset.IsMissing(" "))
	assert.False(t, dataset.IsMissing(0.0))
	assert.False(t, dataset.IsMissing(false))
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float", 2.5, 2.5, true},
		{"numeric string", "42", 42, true},
		{"padded string", " 3.5 ", 3.5, true},
		{"negative exponent", "-1e3", -1000, true},
		{"empty string", "", 0, false},
		{"word", "abc", 0, false},
		{"nan string", "NaN", 0, false},
		{"inf string", "Inf", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
		{"composite", map[string]any{"a": 1.0}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dataset.Number(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", dataset.FormatValue(nil))
	assert.Equal(t, "hello", dataset.FormatValue("hello"))
	assert.Equal(t, "1", dataset.FormatValue(1.0))
	assert.Equal(t, "1.5", dataset.FormatValue(1.5))
	assert.Equal(t, "true", dataset.FormatValue(true))
	assert.Equal(t, `[1,"a"]`, dataset.FormatValue([]any{1.0, "a"}))
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffname,score, city\nalice,10,Paris\nbob,,\"New York, NY\"\n"

	records, err := dataset.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"name", "score", "city"}, records[0].Fields())
	v, _ := records[1].Get("city")
	assert.Equal(t, "New York, NY", v)
	v, _ = records[1].Get("score")
	assert.Equal(t, "", v)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	records, err := dataset.ParseCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseCSV_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"ragged row", "a,b\n1,2,3\n"},
		{"bare quote", "a,b\n\"1,2\n"},
		{"empty column name", "a,,c\n1,2,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dataset.ParseCSV(strings.NewReader(tt.input))
			var perr *dataset.ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, dataset.FormatCSV, perr.Format)
		})
	}
}

func TestParseJSON(t *testing.T) {
	input := `[{"text":"cat dog","n":1},{"text":"dog bird","n":null}]`

	records, err := dataset.ParseJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	v, _ := records[0].Get("n")
	assert.Equal(t, json.Number("1"), v)
	v, ok := records[1].Get("n")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestParseJSON_Malformed(t *testing.T) {
	for _, input := range []string{`{"a":1}`, `[1,2]`, `[{"a":1}`, `not json`, ``} {
		_, err := dataset.ParseJSON(strings.NewReader(input))
		var perr *dataset.ParseError
		assert.True(t, errors.As(err, &perr), "input %q: expected ParseError, got %v", input, err)
	}
}

func TestParse_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	records, err := dataset.Parse(&buf, dataset.FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 1)
	v, _ := records[0].Get("b")
	assert.Equal(t, "2", v)
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseLimit_GzipDecompressedSize(t *testing.T) {
	csv := "a\n" + strings.Repeat("1\n", 4096)
	compressed := gzipped(t, []byte(csv))
	require.Less(t, len(compressed), 1024)

	_, err := dataset.ParseLimit(bytes.NewReader(compressed), dataset.FormatCSV, 1024)
	assert.ErrorIs(t, err, dataset.ErrTooLarge)

	records, err := dataset.ParseLimit(bytes.NewReader(compressed), dataset.FormatCSV, int64(len(csv)))
	require.NoError(t, err)
	assert.Len(t, records, 4096)

	records, err = dataset.ParseLimit(bytes.NewReader(compressed), dataset.FormatCSV, 0)
	require.NoError(t, err)
	assert.Len(t, records, 4096)
}

func TestParseLimit_AppliesToEveryFormat(t *testing.T) {
	inputs := map[dataset.Format]string{
		dataset.FormatJSON: "[" + strings.Repeat(`{"a":"x"},`, 500) + `{"a":"x"}]`,
		dataset.FormatHTML: "<table><tr><th>a</th></tr>" + strings.Repeat("<tr><td>x</td></tr>", 500) + "</table>",
	}
	for format, input := range inputs {
		t.Run(string(format), func(t *testing.T) {
			_, err := dataset.ParseLimit(bytes.NewReader(gzipped(t, []byte(input))), format, 512)
			assert.ErrorIs(t, err, dataset.ErrTooLarge)
		})
	}
}

func TestParseLimit_PlainInputIsNotCapped(t *testing.T) {
	records, err := dataset.ParseLimit(strings.NewReader("a\n1\n2\n"), dataset.FormatCSV, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := dataset.Parse(strings.NewReader("x"), dataset.Format("xml"))
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name string
		want dataset.Format
		ok   bool
	}{
		{"olympics.csv", dataset.FormatCSV, true},
		{"/data/sdg.JSON", dataset.FormatJSON, true},
		{"events.csv.gz", dataset.FormatCSV, true},
		{"page.html", dataset.FormatHTML, true},
		{"notes.txt", "", false},
		{"README", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dataset.FormatFromName(tt.name)
			if !tt.ok {
				assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medals.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"Country":"USA","text":"USA won medals"}]`), 0644))

	records, err := dataset.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Country", "text"}, records[0].Fields())
}

func TestParseHTMLTable(t *testing.T) {
	page := `<html><head><title>Medals</title></head><body>
<p>intro</p>
<table>
  <tr><th>Country</th><th>Gold</th></tr>
  <tr><td>Norway</td><td>16</td></tr>
  <tr><td><b>United</b> States</td><td>8</td></tr>
</table>
<table><tr><th>ignored</th></tr><tr><td>x</td></tr></table>
</body></html>`

	records, err := dataset.ParseHTMLTable(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"Country", "Gold"}, records[0].Fields())
	v, _ := records[1].Get("Country")
	assert.Equal(t, "United States", v)
	v, _ = records[0].Get("Gold")
	assert.Equal(t, "16", v)
}

func TestParseHTMLTable_LineBreaksAndInlineTags(t *testing.T) {
	page := `<table><tr><th>Name</th><th>Note</th></tr>
<tr><td>Ber<b>gen</b></td><td>a<br/>b<br>c</td></tr></table>`

	records, err := dataset.ParseHTMLTable(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, records, 1)

	v, _ := records[0].Get("Name")
	assert.Equal(t, "Bergen", v)
	v, _ = records[0].Get("Note")
	assert.Equal(t, "a b c", v)
}

func TestParseHTMLTable_NoTable(t *testing.T) {
	_, err := dataset.ParseHTMLTable(strings.NewReader("<html><body><p>none</p></body></html>"))
	var perr *dataset.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestDataset_Info(t *testing.T) {
	ds := dataset.New("olympics", "", []dataset.Record{dataset.NewRecord(dataset.Field{Name: "a", Value: "1"})})

	info := ds.Info()
	assert.Equal(t, "olympics", info.ID)
	assert.Equal(t, "Olympics", info.Name)
	assert.Equal(t, 1, info.RecordCount)
	assert.NotNil(t, info.Tags)
	assert.NotEmpty(t, ds.Revision)

	other := dataset.New("olympics", "", nil)
	assert.NotEqual(t, ds.Revision, other.Revision)
}
