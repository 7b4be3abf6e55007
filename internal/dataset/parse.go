package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Format identifies an ingestion format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

var (
	// ErrUnsupportedFormat is returned for unknown formats or file extensions.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	// ErrTooLarge is returned when decompressed input exceeds its limit.
	ErrTooLarge = errors.New("dataset exceeds size limit")
)

// DefaultMaxDecompressedBytes caps gzip input read through Parse.
const DefaultMaxDecompressedBytes = 256 << 20

// ParseError reports malformed input. Line is 0 when unknown.
type ParseError struct {
	Format Format
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s (line %d): %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseFormat maps a user supplied format name ("csv", "JSON", ".json") to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "csv", "text/csv":
		return FormatCSV, nil
	case "json", "application/json":
		return FormatJSON, nil
	case "html", "htm", "text/html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FormatFromName infers the format from a file name, ignoring a trailing .gz.
func FormatFromName(name string) (Format, error) {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(name)), ".gz")
	ext := filepath.Ext(base)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, name)
	}
	return ParseFormat(ext)
}

// Parse decodes records in the given format. Gzip-compressed input is
// detected and decompressed transparently, up to DefaultMaxDecompressedBytes.
func Parse(r io.Reader, format Format) ([]Record, error) {
	return ParseLimit(r, format, DefaultMaxDecompressedBytes)
}

// ParseLimit is Parse with an explicit cap on the decompressed size of gzip
// input. Exceeding it returns ErrTooLarge. A limit <= 0 disables the cap.
func ParseLimit(r io.Reader, format Format, limit int64) ([]Record, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return parseFormat(br, format)
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, &ParseError{Format: format, Err: fmt.Errorf("gzip: %w", err)}
	}
	defer zr.Close()

	if limit <= 0 {
		return parseFormat(zr, format)
	}
	cr := &capReader{r: zr, remaining: limit}
	records, err := parseFormat(cr, format)
	if cr.exceeded {
		return nil, fmt.Errorf("%w: decompressed input is larger than %d bytes", ErrTooLarge, limit)
	}
	return records, err
}

// capReader fails with ErrTooLarge once more than remaining bytes are read.
type capReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, ErrTooLarge
	}
	if c.remaining <= 0 {
		var extra [1]byte
		n, err := c.r.Read(extra[:])
		if n > 0 {
			c.exceeded = true
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}

func parseFormat(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatJSON:
		return ParseJSON(r)
	case FormatHTML:
		return ParseHTMLTable(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// LoadFile parses a dataset file, choosing the format from its name.
func LoadFile(path string) ([]Record, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return Parse(f, format)
}

// ParseCSV reads comma separated records whose first line is the header.
// Every value is kept as a string; empty cells are missing values.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Format: FormatCSV, Line: 1, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, csvError(err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == "" {
			return nil, &ParseError{Format: FormatCSV, Line: 1, Err: fmt.Errorf("empty column name at position %d", i+1)}
		}
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		fields := make([]Field, len(header))
		for i, name := range header {
			fields[i] = Field{Name: name, Value: row[i]}
		}
		records = append(records, NewRecord(fields...))
	}
	return records, nil
}

func csvError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &ParseError{Format: FormatCSV, Line: perr.Line, Err: perr.Err}
	}
	return &ParseError{Format: FormatCSV, Err: err}
}

// ParseJSON reads a JSON array of objects.
func ParseJSON(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, &ParseError{Format: FormatJSON, Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, &ParseError{Format: FormatJSON, Err: fmt.Errorf("expected an array of objects, got %s", describeToken(tok))}
	}

	var records []Record
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, &ParseError{Format: FormatJSON, Err: fmt.Errorf("element %d: %w", len(records), err)}
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &ParseError{Format: FormatJSON, Err: err}
	}
	return records, nil
}
