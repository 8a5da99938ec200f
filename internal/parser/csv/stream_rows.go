package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"fuelimport/internal/domain"
)

// RawRow is one tokenized data row. Values are aligned with the document
// header; the row is ephemeral and owned by whoever received it.
type RawRow struct {
	Index  int // 1-based data row index (header excluded)
	Line   int // 1-based physical line where the row starts
	Values []string
	header Header
}

// Get returns the raw value for a source column.
func (r RawRow) Get(column string) (string, bool) {
	i := r.header.Index(column)
	if i < 0 || i >= len(r.Values) {
		return "", false
	}
	return r.Values[i], true
}

// Pair is a (column, value) entry.
type Pair struct {
	Column string
	Value  string
}

// Pairs returns the row as an ordered list of (column, value) pairs.
func (r RawRow) Pairs() []Pair {
	out := make([]Pair, len(r.Values))
	for i, v := range r.Values {
		out[i] = Pair{Column: r.header.names[i], Value: v}
	}
	return out
}

// StreamRows emits every data row to out in source order. Rows whose field
// count differs from the header, or that encoding/csv cannot tokenize, are
// reported through onErr and the stream continues. Blank lines are skipped
// and do not consume a row index.
//
// StreamRows returns nil at end of input or ctx.Err() on cancellation. The
// caller is responsible for closing out.
func (d *Document) StreamRows(ctx context.Context, out chan<- RawRow, onErr func(RowError)) error {
	_, cr, err := readHeader(d.data, d.comma)
	if err != nil {
		return err
	}

	expected := d.header.Len()
	index := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			index++
			if onErr != nil {
				onErr(RowError{Index: index, Line: line, Kind: domain.KindMalformedRow, Err: err})
			}
			continue
		}
		if isBlank(rec) {
			continue
		}

		index++
		line, _ := cr.FieldPos(0)
		if len(rec) != expected {
			if onErr != nil {
				onErr(RowError{Index: index, Line: line, Kind: domain.KindColumnCountMismatch, Expected: expected, Got: len(rec)})
			}
			continue
		}

		row := RawRow{Index: index, Line: line, Values: rec, header: d.header}
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadAll drains the document into memory. It is a convenience for small
// inputs and tests; the pipeline uses StreamRows.
func (d *Document) ReadAll(ctx context.Context) ([]RawRow, []RowError, error) {
	var (
		rows []RawRow
		errs []RowError
	)
	ch := make(chan RawRow)
	done := make(chan error, 1)
	go func() {
		done <- d.StreamRows(ctx, ch, func(e RowError) { errs = append(errs, e) })
		close(ch)
	}()
	for r := range ch {
		rows = append(rows, r)
	}
	err := <-done
	return rows, errs, err
}
