// Package pipeline runs one CSV import job end to end:
//
//	tokenize -> map -> validate -> dedupe -> sequence/detect -> load
//
// Rows flow from the tokenizer through a bounded pool of map/validate
// workers; everything after that works on the validated set. Every data row
// ends up exactly once in the result as imported, skipped, failed or pending.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fuelimport/internal/anomaly"
	"fuelimport/internal/domain"
	"fuelimport/internal/lookup"
	"fuelimport/internal/mapper"
	"fuelimport/internal/metrics"
	"fuelimport/internal/parser/csv"
	"fuelimport/internal/sequencer"
	"fuelimport/internal/storage"
	"fuelimport/internal/validator"
)

// Pipeline binds the collaborators of an import. It holds no per-job state
// and is safe for concurrent ImportCSV calls.
type Pipeline struct {
	lookups lookup.Collaborators
	writer  storage.BatchWriter
	logger  *log.Logger
	verbose bool
	onBatch func(storage.BatchStat)
}

// New returns a pipeline that resolves references through lookups and
// persists through w. w may be nil for dry runs only.
func New(lookups lookup.Collaborators, w storage.BatchWriter, opts ...Option) *Pipeline {
	p := &Pipeline{lookups: lookups, writer: w, logger: log.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// FromRepository wires a storage.Repository as both writer and lookups.
func FromRepository(repo storage.Repository, opts ...Option) *Pipeline {
	return New(storage.Collaborators(repo), repo, opts...)
}

// job is the per-import state threaded through the stages.
type job struct {
	id     uuid.UUID
	name   string
	opt    Options
	guard  *lookup.Guard
	logger *log.Logger

	mu        sync.Mutex
	total     int
	pending   int
	failed    []domain.RowDiagnostics
	validated []domain.ValidatedRecord
}

func (j *job) fail(index, line int, reasons []domain.Diagnostic) {
	j.mu.Lock()
	j.failed = append(j.failed, domain.RowDiagnostics{RowIndex: index, Line: line, Reasons: reasons})
	j.mu.Unlock()
}

// ImportCSV imports data using mapping. Only a *csv.ParseError (or an
// invalid mapping) is returned as an error; every row-level outcome lands
// in the result. Cancelling ctx stops submitting batches; a batch already
// handed to storage completes, and rows never submitted are PendingCount.
func (p *Pipeline) ImportCSV(ctx context.Context, data []byte, mapping domain.ColumnMapping, opt Options) (domain.ImportResult, error) {
	j := &job{id: uuid.New(), name: opt.Job, opt: opt, logger: p.logger}
	if j.name == "" {
		j.name = "fuelimport"
	}
	res := domain.ImportResult{JobID: j.id}
	if !opt.DryRun && p.writer == nil {
		return res, fmt.Errorf("pipeline: no storage writer configured")
	}
	j.guard = lookup.NewGuard(p.lookups, opt.LookupTimeout, p.logger)

	// 1) Tokenize the header.
	start := time.Now()
	doc, err := csv.Parse(data, opt.Delimiter)
	metrics.RecordStep(j.name, "parse", err, time.Since(start))
	if err != nil {
		return res, err
	}

	// 2) Compile the mapping against the header.
	plan, err := mapper.Compile(doc.Header(), mapping, opt.mapperOptions())
	if err != nil {
		return res, fmt.Errorf("compile mapping: %w", err)
	}
	if missing := plan.Unresolved(); len(missing) > 0 {
		p.logger.Printf("mapper: job=%s unresolved fields=%v", j.name, missing)
	}

	// 3) Stream rows through the map/validate pool.
	start = time.Now()
	err = p.mapAndValidate(ctx, j, doc, plan)
	metrics.RecordStep(j.name, "validate", err, time.Since(start))
	if err != nil {
		return res, err
	}

	// 4) Restore source order and split off in-batch duplicates.
	sort.SliceStable(j.validated, func(a, b int) bool {
		return j.validated[a].SourceRowIndex < j.validated[b].SourceRowIndex
	})
	kept, dups := validator.MarkDuplicates(j.validated)
	for _, d := range dups {
		res.Warnings = append(res.Warnings, rowWarnings(d, d.Warnings))
	}
	res.SkippedCount += len(dups)

	// 5) Sequence per vehicle and run the detector on each link.
	var stored []domain.StoredRecord
	if ctx.Err() == nil {
		start = time.Now()
		stored, err = p.sequenceAndDetect(ctx, j, kept)
		metrics.RecordStep(j.name, "detect", err, time.Since(start))
	}
	if stored == nil && len(kept) > 0 {
		// Cancelled before anything could be submitted.
		j.pending += len(kept)
		res.Cancelled = true
	}

	// 6) Load.
	var imported []domain.StoredRecord
	switch {
	case stored == nil:
	case opt.DryRun:
		imported = stored
		res.DryRun = true
	default:
		start = time.Now()
		rep := storage.LoadBatches(ctx, p.writer, stored, storage.LoaderOptions{
			BatchSize: opt.BatchSize,
			Logger:    p.batchLogger(),
			OnBatch: func(s storage.BatchStat) {
				metrics.RecordBatch(j.name, s.Err != nil)
				if p.onBatch != nil {
					p.onBatch(s)
				}
			},
		})
		metrics.RecordStep(j.name, "load", nil, time.Since(start))
		imported = rep.Imported
		res.SkippedCount += len(rep.Skipped)
		res.Warnings = append(res.Warnings, rep.Skipped...)
		j.failed = append(j.failed, rep.Failed...)
		j.pending += rep.Pending
		res.Cancelled = res.Cancelled || rep.Cancelled
	}

	// 7) Assemble.
	for _, r := range imported {
		if len(r.Warnings) > 0 {
			res.Warnings = append(res.Warnings, rowWarnings(r.ValidatedRecord, r.Warnings))
		}
		if r.Analytics.Flagged() {
			res.FlaggedRecordIDs = append(res.FlaggedRecordIDs, r.ID)
		}
	}
	res.TotalRows = j.total
	res.ImportedCount = len(imported)
	res.FailedRows = j.failed
	res.PendingCount = j.pending
	if res.PendingCount > 0 {
		res.Cancelled = true
	}
	if res.FailedRows == nil {
		res.FailedRows = []domain.RowDiagnostics{}
	}
	if res.Warnings == nil {
		res.Warnings = []domain.RowDiagnostics{}
	}
	if res.FlaggedRecordIDs == nil {
		res.FlaggedRecordIDs = []uuid.UUID{}
	}
	res.SortDiagnostics()

	p.summarize(j, res)
	return res, nil
}

// mapAndValidate streams every data row through a pool of workers. Rows
// reaching a worker after ctx is cancelled are counted as pending so the
// tokenizer can still account for every row.
func (p *Pipeline) mapAndValidate(ctx context.Context, j *job, doc *csv.Document, plan *mapper.Plan) error {
	workers := j.opt.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	v := validator.New(j.guard, j.opt.validatorOptions())

	rows := make(chan csv.RawRow, workers*4)
	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(rows)
		// The tokenizer is pure in-memory work; it runs to the end so that
		// TotalRows is exact even when the job is cancelled.
		return doc.StreamRows(context.WithoutCancel(ctx), rows, func(e csv.RowError) {
			j.mu.Lock()
			j.total++
			j.mu.Unlock()
			j.fail(e.Index, e.Line, []domain.Diagnostic{e.Diagnostic()})
		})
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for row := range rows {
				j.mu.Lock()
				j.total++
				j.mu.Unlock()

				if ctx.Err() != nil {
					j.mu.Lock()
					j.pending++
					j.mu.Unlock()
					continue
				}

				m := plan.Map(row)
				if len(m.Errors) > 0 {
					j.fail(row.Index, row.Line, m.Errors)
					continue
				}
				rec, errs := v.Validate(ctx, *m.Candidate)
				if len(errs) > 0 {
					j.fail(row.Index, row.Line, errs)
					continue
				}
				rec.Warnings = m.Warnings

				j.mu.Lock()
				j.validated = append(j.validated, rec)
				j.mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

// sequenceAndDetect pairs each record with its predecessor and computes its
// analytics. It returns nil when ctx was cancelled.
func (p *Pipeline) sequenceAndDetect(ctx context.Context, j *job, kept []domain.ValidatedRecord) ([]domain.StoredRecord, error) {
	det := anomaly.New(j.guard, j.opt.anomalyOptions())
	analytics := make([]domain.RefuelAnalytics, len(kept))

	_, err := sequencer.Sequence(ctx, kept, j.guard.MostRecentRefuel, sequencer.Options{
		Concurrency: j.opt.Concurrency,
		Visit: func(ctx context.Context, l sequencer.Link) {
			analytics[l.Index] = det.Detect(ctx, l.Record, l.Predecessor)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.StoredRecord, len(kept))
	for i, r := range kept {
		out[i] = domain.StoredRecord{ValidatedRecord: r, Analytics: analytics[i]}
	}
	return out, nil
}

func (p *Pipeline) batchLogger() *log.Logger {
	if p.verbose {
		return p.logger
	}
	return nil
}

// summarize logs the job totals, checks the row accounting and records the
// row metrics.
func (p *Pipeline) summarize(j *job, res domain.ImportResult) {
	timeouts, failures := j.guard.Stats()
	p.logger.Printf(
		"summary: job=%s id=%s total=%d imported=%d skipped=%d failed=%d pending=%d flagged=%d warnings=%d cancelled=%t lookup_timeouts=%d lookup_failures=%d",
		j.name, j.id, res.TotalRows, res.ImportedCount, res.SkippedCount, len(res.FailedRows),
		res.PendingCount, len(res.FlaggedRecordIDs), len(res.Warnings), res.Cancelled, timeouts, failures,
	)
	if res.Accounted() != res.TotalRows {
		p.logger.Printf("WARNING: row accounting mismatch: total=%d accounted=%d (delta=%d)",
			res.TotalRows, res.Accounted(), res.TotalRows-res.Accounted())
	}

	metrics.RecordRows(j.name, metrics.KindRows, res.TotalRows)
	metrics.RecordRows(j.name, metrics.KindImported, res.ImportedCount)
	metrics.RecordRows(j.name, metrics.KindSkipped, res.SkippedCount)
	metrics.RecordRows(j.name, metrics.KindFailed, len(res.FailedRows))
	metrics.RecordRows(j.name, metrics.KindPending, res.PendingCount)
	metrics.RecordRows(j.name, metrics.KindFlagged, len(res.FlaggedRecordIDs))
	metrics.RecordRows(j.name, metrics.KindWarnings, len(res.Warnings))
	metrics.RecordLookups(j.name, timeouts, failures)
}

func rowWarnings(r domain.ValidatedRecord, w []domain.Diagnostic) domain.RowDiagnostics {
	return domain.RowDiagnostics{RowIndex: r.SourceRowIndex, Line: r.SourceLine, Reasons: w}
}
