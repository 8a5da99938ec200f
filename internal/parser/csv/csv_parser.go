// Package csv tokenizes loosely-structured refuel exports. It accepts comma
// or semicolon delimited UTF-8 text with RFC 4180 quoting (quoted fields may
// contain the delimiter, literal newlines and "" escapes), detects the
// delimiter from the header line when none is given, and reports malformed
// rows as row-level errors instead of aborting the parse.
package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"fuelimport/internal/domain"
)

// ParseErrorKind identifies a job-fatal tokenizer failure.
type ParseErrorKind string

const (
	EmptyInput          ParseErrorKind = "EmptyInput"
	NoDelimiterDetected ParseErrorKind = "NoDelimiterDetected"
	MalformedHeader     ParseErrorKind = "MalformedHeader"
)

// ParseError is fatal to the whole import job.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return "parse: " + string(e.Kind)
	}
	return fmt.Sprintf("parse: %s: %s", e.Kind, e.Detail)
}

// RowError describes a data row that could not be tokenized. The row is
// counted and reported but never aborts the parse.
type RowError struct {
	Index    int // 1-based data row index
	Line     int // 1-based physical line where the row starts
	Kind     domain.DiagnosticKind
	Expected int
	Got      int
	Err      error
}

func (e RowError) Error() string {
	if e.Kind == domain.KindColumnCountMismatch {
		return fmt.Sprintf("row %d (line %d): incorrect number of fields: expected %d, got %d", e.Index, e.Line, e.Expected, e.Got)
	}
	return fmt.Sprintf("row %d (line %d): %v", e.Index, e.Line, e.Err)
}

// Diagnostic converts the row error into the shared diagnostic shape.
func (e RowError) Diagnostic() domain.Diagnostic {
	d := domain.Diagnostic{Kind: e.Kind}
	if e.Kind == domain.KindColumnCountMismatch {
		d.Detail = fmt.Sprintf("expected %d fields, got %d", e.Expected, e.Got)
	} else if e.Err != nil {
		d.Detail = e.Err.Error()
	}
	return d
}

// candidates are tried in order during delimiter detection.
var candidates = []rune{',', ';'}

// Document is a tokenized view over an in-memory export. Rows are produced
// lazily by StreamRows, which can be called any number of times; each call
// restarts from the first data row.
type Document struct {
	data   []byte
	comma  rune
	header Header
}

// Parse reads the header of data and prepares a Document. When delimiter is
// zero it is detected from the header line: the first of ',' or ';' that
// yields at least two header fields wins, and when both do the one yielding
// more fields wins. On a tie ',' wins, so "Data, hora;Placa" splits on ','
// unless the caller passes ';'.
func Parse(data []byte, delimiter rune) (*Document, error) {
	data = stripBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Kind: EmptyInput}
	}

	comma := delimiter
	if comma == 0 {
		best, bestN := rune(0), 0
		for _, c := range candidates {
			rec, _, err := readHeader(data, c)
			if err != nil {
				continue
			}
			if len(rec) >= 2 && len(rec) > bestN {
				best, bestN = c, len(rec)
			}
		}
		if best == 0 {
			return nil, &ParseError{Kind: NoDelimiterDetected, Detail: "header has fewer than 2 fields for ',' and ';'"}
		}
		comma = best
	}

	rec, _, err := readHeader(data, comma)
	if err != nil {
		return nil, &ParseError{Kind: MalformedHeader, Detail: err.Error()}
	}
	h, err := newHeader(rec)
	if err != nil {
		return nil, err
	}
	return &Document{data: data, comma: comma, header: h}, nil
}

// Delimiter returns the delimiter in use.
func (d *Document) Delimiter() rune { return d.comma }

// Header returns the normalized header.
func (d *Document) Header() Header { return d.header }

// newReader builds a csv.Reader that tolerates variable widths; width is
// enforced by the stream against the header.
func newReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	return cr
}

// readHeader returns the first non-blank record.
func readHeader(data []byte, comma rune) ([]string, *csv.Reader, error) {
	cr := newReader(bytes.NewReader(data), comma)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, nil, errors.New("no header row")
		}
		if err != nil {
			return nil, nil, err
		}
		if isBlank(rec) {
			continue
		}
		return rec, cr, nil
	}
}

// isBlank reports a whitespace-only line, which encoding/csv surfaces as a
// single empty-ish field.
func isBlank(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// Header is the ordered list of source column names with O(1) lookup.
type Header struct {
	names []string
	pos   map[string]int
}

func newHeader(rec []string) (Header, error) {
	h := Header{names: make([]string, len(rec)), pos: make(map[string]int, len(rec))}
	for i, raw := range rec {
		name := strings.TrimSpace(raw)
		if name == "" {
			return Header{}, &ParseError{Kind: MalformedHeader, Detail: fmt.Sprintf("column %d has an empty name", i+1)}
		}
		if _, dup := h.pos[name]; dup {
			return Header{}, &ParseError{Kind: MalformedHeader, Detail: fmt.Sprintf("duplicate column %q", name)}
		}
		h.names[i] = name
		h.pos[name] = i
	}
	return h, nil
}

// Names returns a copy of the header names in source order.
func (h Header) Names() []string { return append([]string(nil), h.names...) }

// Len returns the number of header fields.
func (h Header) Len() int { return len(h.names) }

// Index returns the position of column name, or -1.
func (h Header) Index(name string) int {
	if i, ok := h.pos[name]; ok {
		return i
	}
	return -1
}
