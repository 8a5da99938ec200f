package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"fuelimport/internal/domain"
)

// DefaultBatchSize bounds one transaction.
const DefaultBatchSize = 100

// LoaderOptions tunes LoadBatches.
type LoaderOptions struct {
	BatchSize int
	// Logger receives one progress line per batch. Nil discards them.
	Logger *log.Logger
	// OnBatch, when set, is called after every attempted batch.
	OnBatch func(BatchStat)
}

// BatchStat describes one attempted batch.
type BatchStat struct {
	Seq      int
	Size     int
	Inserted int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
	Err      error
}

// LoadReport is the loader's share of the import result.
type LoadReport struct {
	Imported      []domain.StoredRecord
	Skipped       []domain.RowDiagnostics
	Failed        []domain.RowDiagnostics
	Pending       int
	Batches       int
	FailedBatches int
	Cancelled     bool
}

// LoadBatches commits recs in batches of opt.BatchSize. For each batch:
//
//   - rows whose natural key already exists are skipped (DuplicateExisting);
//   - the rest go to one InsertBatch call; rows rejected by the unique
//     constraint are skipped the same way;
//   - any other failure fails every row handed to InsertBatch (StoreError)
//     and the loader moves on to the next batch.
//
// Cancellation is checked before each batch. A batch that has started runs to
// completion under a context detached from ctx, so it is never half
// committed; rows in batches never started are reported as Pending.
func LoadBatches(ctx context.Context, w BatchWriter, recs []domain.StoredRecord, opt LoaderOptions) LoadReport {
	size := opt.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	logger := opt.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var (
		rep       LoadReport
		start     = time.Now()
		lastFlush = start
	)

	for off := 0; off < len(recs); off += size {
		if ctx.Err() != nil {
			rep.Cancelled = true
			rep.Pending = len(recs) - off
			logger.Printf("loader: cancelled before batch #%d pending=%d", rep.Batches+1, rep.Pending)
			break
		}
		end := off + size
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[off:end]
		rep.Batches++

		bctx := context.WithoutCancel(ctx)
		stat := loadOne(bctx, w, batch, &rep)
		stat.Seq = rep.Batches

		now := time.Now()
		stat.Elapsed = now.Sub(lastFlush)
		rps := float64(0)
		if stat.Elapsed > 0 {
			rps = float64(stat.Inserted) / stat.Elapsed.Seconds()
		}
		if stat.Err != nil {
			rep.FailedBatches++
			logger.Printf("loader: batch #%d failed rows=%d err=%v", stat.Seq, stat.Failed, stat.Err)
		} else {
			logger.Printf(
				"batch #%d: rps=%.0f inserted=%d skipped=%d total_inserted=%d elapsed=%s since_last=%s",
				stat.Seq, rps, stat.Inserted, stat.Skipped, len(rep.Imported),
				now.Sub(start).Truncate(time.Millisecond),
				stat.Elapsed.Truncate(time.Millisecond),
			)
		}
		lastFlush = now
		if opt.OnBatch != nil {
			opt.OnBatch(stat)
		}
	}
	return rep
}

func loadOne(ctx context.Context, w BatchWriter, batch []domain.StoredRecord, rep *LoadReport) BatchStat {
	stat := BatchStat{Size: len(batch)}

	keys := make([]domain.NaturalKey, len(batch))
	for i, r := range batch {
		keys[i] = r.Key()
	}
	existing, err := w.ExistingKeys(ctx, keys)
	if err != nil {
		stat.Err = err
		stat.Failed = len(batch)
		failAll(rep, batch, err)
		return stat
	}

	fresh := make([]domain.StoredRecord, 0, len(batch))
	for i, r := range batch {
		if existing[keys[i]] {
			skip(rep, r, "already persisted")
			stat.Skipped++
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return stat
	}

	inserted, err := w.InsertBatch(ctx, fresh)
	if err == nil && len(inserted) != len(fresh) {
		err = errShortResult
	}
	if err != nil {
		stat.Err = err
		stat.Failed = len(fresh)
		failAll(rep, fresh, err)
		return stat
	}
	for i, r := range fresh {
		if inserted[i] {
			rep.Imported = append(rep.Imported, r)
			stat.Inserted++
		} else {
			skip(rep, r, "unique constraint")
			stat.Skipped++
		}
	}
	return stat
}

var errShortResult = errors.New("storage: InsertBatch returned a result of the wrong length")

func skip(rep *LoadReport, r domain.StoredRecord, detail string) {
	k := r.Key()
	rep.Skipped = append(rep.Skipped, domain.RowDiagnostics{
		RowIndex: r.SourceRowIndex,
		Line:     r.SourceLine,
		Reasons: []domain.Diagnostic{{
			Kind:   domain.KindDuplicateExisting,
			Detail: fmt.Sprintf("%s/%s/%d %s", k.VehicleID, k.RefuelDate, k.OdometerReading, detail),
		}},
	})
}

func failAll(rep *LoadReport, recs []domain.StoredRecord, err error) {
	for _, r := range recs {
		rep.Failed = append(rep.Failed, domain.RowDiagnostics{
			RowIndex: r.SourceRowIndex,
			Line:     r.SourceLine,
			Reasons:  []domain.Diagnostic{{Kind: domain.KindStoreError, Detail: err.Error()}},
		})
	}
}
