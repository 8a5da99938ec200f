package domain

import (
	"sort"

	"github.com/google/uuid"
)

// ImportResult summarizes one import job. Every data row is accounted for
// exactly once:
//
//	ImportedCount + SkippedCount + len(FailedRows) + PendingCount == TotalRows
//
// PendingCount is non-zero only when the job was cancelled before every row
// was submitted to storage.
type ImportResult struct {
	JobID            uuid.UUID        `json:"jobId"`
	TotalRows        int              `json:"totalRows"`
	ImportedCount    int              `json:"importedCount"`
	SkippedCount     int              `json:"skippedCount"`
	PendingCount     int              `json:"pendingCount"`
	FailedRows       []RowDiagnostics `json:"failedRows"`
	Warnings         []RowDiagnostics `json:"warnings"`
	FlaggedRecordIDs []uuid.UUID      `json:"flaggedRecordIds"`
	Cancelled        bool             `json:"cancelled"`
	// DryRun is set when the loader was skipped; ImportedCount then counts
	// the rows that would have been submitted.
	DryRun bool `json:"dryRun,omitempty"`
}

// Accounted returns the number of rows the result accounts for.
func (r ImportResult) Accounted() int {
	return r.ImportedCount + r.SkippedCount + len(r.FailedRows) + r.PendingCount
}

// SortDiagnostics restores original row order for failures and warnings.
func (r *ImportResult) SortDiagnostics() {
	sort.SliceStable(r.FailedRows, func(i, j int) bool { return r.FailedRows[i].RowIndex < r.FailedRows[j].RowIndex })
	sort.SliceStable(r.Warnings, func(i, j int) bool { return r.Warnings[i].RowIndex < r.Warnings[j].RowIndex })
}
