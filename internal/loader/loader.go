// Package loader reads delimited tabular sources into RawRecord
// streams. It is the only package that touches raw input bytes; all
// tolerance for messy files (BOM, CRLF, blank lines, short rows,
// invalid UTF-8) lives here so downstream stages see uniform records.
package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format identifies the delimiter convention of a source file.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatTSV:
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be csv or tsv", s)
	}
}

func (f Format) delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// RawRecord is a single untyped row from a source dataset: original
// column names mapped to raw string values. A column absent from
// Fields was missing on that row (short row padding); it is distinct
// from an empty-string value. RawRecords are consumed immediately by
// the harmonizer and then discarded.
type RawRecord struct {
	// Line is the 1-based line number of the row in the source, for
	// diagnostics.
	Line int

	Fields map[string]string
}

// Get returns the raw value for a column and whether it was present.
func (r RawRecord) Get(col string) (string, bool) {
	v, ok := r.Fields[col]
	return v, ok
}

// Reader streams RawRecords from one delimited source. One pass;
// restart by constructing a new Reader on a fresh stream. A Reader
// holds no global state.
type Reader struct {
	source string
	header []string
	csv    *csv.Reader
}

// New wraps a byte stream for the named source. The header line is
// read and validated eagerly: an empty header or duplicate column
// names make the whole source structurally unreadable (LoadError).
//
// A UTF-8 byte-order mark is stripped; CRLF line endings and blank
// lines are tolerated; rows may have fewer fields than the header.
func New(source string, r io.Reader, format Format) (*Reader, error) {
	br := bufio.NewReader(r)

	// Strip a UTF-8 BOM if present. Excel exports routinely carry one.
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		if _, err := br.Discard(3); err != nil {
			return nil, &LoadError{Source: source, Code: ErrCodeUnreadable, Message: "discarding BOM", Err: err}
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = format.delimiter()
	cr.FieldsPerRecord = -1 // rows may be short; the Reader pads
	cr.LazyQuotes = true

	rd := &Reader{source: source, csv: cr}

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &LoadError{Source: source, Code: ErrCodeEmptyHeader, Message: "source is empty"}
		}
		return nil, &LoadError{Source: source, Code: ErrCodeBadHeader, Message: "unparseable header", Err: err}
	}

	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(strings.ToValidUTF8(col, "�"))
		if col == "" {
			return nil, &LoadError{Source: source, Code: ErrCodeBadHeader,
				Message: fmt.Sprintf("header column %d is empty", i+1)}
		}
		if seen[col] {
			return nil, &LoadError{Source: source, Code: ErrCodeBadHeader,
				Message: fmt.Sprintf("duplicate header column %q", col)}
		}
		seen[col] = true
		header[i] = col
	}
	rd.header = header

	return rd, nil
}

// Header returns the normalized column names in file order.
func (r *Reader) Header() []string {
	return r.header
}

// Source returns the source tag this reader was constructed with.
func (r *Reader) Source() string {
	return r.source
}

// Next returns the next data row, or io.EOF when the source is
// exhausted. Blank lines are skipped. Columns missing from a short row
// are absent from Fields (null), not empty strings. A row csv cannot
// parse at all makes the source unreadable from that point on.
func (r *Reader) Next() (RawRecord, error) {
	for {
		row, err := r.csv.Read()
		if err == io.EOF {
			return RawRecord{}, io.EOF
		}
		if err != nil {
			return RawRecord{}, &LoadError{Source: r.source, Code: ErrCodeUnreadable,
				Message: "unparseable row", Err: err}
		}

		// encoding/csv already skips fully empty lines, but a line of
		// bare delimiters still parses as all-empty fields. Skip those
		// too.
		if allEmpty(row) {
			continue
		}

		// FieldPos gives the physical line of the row just read, so
		// diagnostics stay accurate across the blank lines csv skips
		// internally.
		line, _ := r.csv.FieldPos(0)

		fields := make(map[string]string, len(r.header))
		for i, col := range r.header {
			if i >= len(row) {
				break // short row: remaining columns stay absent
			}
			fields[col] = strings.ToValidUTF8(row[i], "�")
		}
		return RawRecord{Line: line, Fields: fields}, nil
	}
}

// ReadAll drains the reader. Convenience for small sources and tests.
func (r *Reader) ReadAll() ([]RawRecord, error) {
	var out []RawRecord
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func allEmpty(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Error codes for load failures.
const (
	ErrCodeEmptyHeader = "EMPTY_SOURCE"
	ErrCodeBadHeader   = "BAD_HEADER"
	ErrCodeUnreadable  = "UNREADABLE"
)

// LoadError marks a source as structurally unreadable. It is fatal for
// that source only; the pipeline continues with the remaining sources.
type LoadError struct {
	Source  string
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is a LoadError, unwrapping as needed.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
