// Package skiplog writes the rows an import did not persist as a CSV report
// that operators can fix up and feed back into the next run.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"fuelimport/internal/domain"
)

// Header is the first line of every report.
var Header = []string{"status", "row", "line", "kind", "field", "raw_value", "detail"}

const (
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusWarning = "warning"
)

type entry struct {
	status string
	row    domain.RowDiagnostics
}

// Write emits one line per diagnostic. Failed rows, skipped duplicates and
// (when withWarnings is set) the warnings of imported rows are merged in
// source row order.
func Write(w io.Writer, res domain.ImportResult, withWarnings bool) (int, error) {
	var entries []entry
	for _, r := range res.FailedRows {
		entries = append(entries, entry{StatusFailed, r})
	}
	for _, r := range res.Warnings {
		switch {
		case isSkip(r):
			entries = append(entries, entry{StatusSkipped, r})
		case withWarnings:
			entries = append(entries, entry{StatusWarning, r})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].row.RowIndex < entries[j].row.RowIndex })

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		for _, d := range e.row.Reasons {
			line := ""
			if e.row.Line > 0 {
				line = strconv.Itoa(e.row.Line)
			}
			rec := []string{
				e.status,
				strconv.Itoa(e.row.RowIndex),
				line,
				string(d.Kind),
				string(d.Field),
				d.RawValue,
				d.Detail,
			}
			if err := cw.Write(rec); err != nil {
				return n, err
			}
			n++
		}
	}
	cw.Flush()
	return n, cw.Error()
}

// WriteFile writes the report to path, replacing any existing file.
func WriteFile(path string, res domain.ImportResult, withWarnings bool) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create rejects file: %w", err)
	}
	n, err := Write(f, res, withWarnings)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write rejects file %s: %w", path, err)
	}
	return n, nil
}

// isSkip reports whether a warning entry stands for a row that was not
// persisted because it duplicates another one.
func isSkip(r domain.RowDiagnostics) bool {
	for _, d := range r.Reasons {
		if d.Kind == domain.KindDuplicateInBatch || d.Kind == domain.KindDuplicateExisting {
			return true
		}
	}
	return false
}
