package dataset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTMLTable extracts the first <table> of an HTML document. The first
// row provides the column names; cells are kept as trimmed strings. Nested
// tables are ignored.
func ParseHTMLTable(r io.Reader) ([]Record, error) {
	tokenizer := html.NewTokenizer(r)

	var (
		rows      [][]string
		row       []string
		cell      strings.Builder
		inCell    bool
		depth     int // table nesting depth
		tableSeen bool
	)

	finishCell := func() {
		if inCell {
			row = append(row, strings.Join(strings.Fields(cell.String()), " "))
			cell.Reset()
			inCell = false
		}
	}
	finishRow := func() {
		finishCell()
		if len(row) > 0 {
			rows = append(rows, row)
		}
		row = nil
	}

loop:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				break loop
			}
			return nil, &ParseError{Format: FormatHTML, Err: tokenizer.Err()}

		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if isCellBreak(string(name)) && inCell {
				cell.WriteByte(' ')
			}

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "table":
				if tableSeen && depth == 0 {
					break loop
				}
				tableSeen = true
				depth++
				if inCell {
					cell.WriteByte(' ')
				}
			case "tr":
				if depth == 1 {
					finishRow()
				}
			case "td", "th":
				if depth == 1 {
					finishCell()
					inCell = true
				}
			default:
				if isCellBreak(string(name)) && inCell {
					cell.WriteByte(' ')
				}
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "table":
				depth--
				if depth == 0 {
					finishRow()
					break loop
				}
			case "tr":
				if depth == 1 {
					finishRow()
				}
			case "td", "th":
				if depth == 1 {
					finishCell()
				}
			default:
				if isCellBreak(string(name)) && inCell {
					cell.WriteByte(' ')
				}
			}

		case html.TextToken:
			if inCell && depth == 1 {
				cell.Write(tokenizer.Text())
			}
		}
	}

	if !tableSeen {
		return nil, &ParseError{Format: FormatHTML, Err: errors.New("no <table> element found")}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Format: FormatHTML, Err: errors.New("table has no rows")}
	}

	header := rows[0]
	for i, name := range header {
		if name == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		fields := make([]Field, 0, len(header))
		for i, name := range header {
			if i < len(cells) {
				fields = append(fields, Field{Name: name, Value: cells[i]})
			}
		}
		records = append(records, NewRecord(fields...))
	}
	return records, nil
}

// isCellBreak reports whether a tag separates words inside a cell. Inline
// tags such as <b> or <a> do not.
func isCellBreak(tag string) bool {
	switch tag {
	case "br", "p", "div", "li", "hr":
		return true
	}
	return false
}
