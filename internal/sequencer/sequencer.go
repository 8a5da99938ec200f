// Package sequencer orders each vehicle's records chronologically and pairs
// every record with its predecessor.
package sequencer

import (
	"context"
	"runtime"
	"sort"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"fuelimport/internal/domain"
)

// Link pairs a record with the refuel that precedes it for the same vehicle.
// Predecessor is nil for a vehicle's first record when nothing is persisted.
type Link struct {
	// Index is the record's position in the slice given to Sequence.
	Index       int
	Record      domain.ValidatedRecord
	Predecessor *domain.RefuelState
}

// LastPersisted returns a vehicle's most recent persisted refuel, or nil.
// It is called at most once per vehicle per Sequence call.
type LastPersisted func(ctx context.Context, vehicleID string) *domain.RefuelState

// Options controls partition fan-out.
type Options struct {
	// Concurrency is the number of partitions processed at once. Zero means
	// runtime.NumCPU().
	Concurrency int
	// Visit, when set, is called for every link from the goroutine owning the
	// vehicle, in chronological order for that vehicle.
	Visit func(ctx context.Context, l Link)
}

// Sequence returns one link per record, aligned with records. Vehicles are
// hashed onto Concurrency shards; each shard walks its vehicles one at a time
// so no vehicle is ever handled by two goroutines.
func Sequence(ctx context.Context, records []domain.ValidatedRecord, last LastPersisted, opt Options) ([]Link, error) {
	n := opt.Concurrency
	if n <= 0 {
		n = runtime.NumCPU()
	}

	var order []string
	byVehicle := make(map[string][]int)
	for i, r := range records {
		if _, ok := byVehicle[r.VehicleID]; !ok {
			order = append(order, r.VehicleID)
		}
		byVehicle[r.VehicleID] = append(byVehicle[r.VehicleID], i)
	}

	shards := make([][]string, n)
	for _, v := range order {
		s := xxh3.HashString(v) % uint64(n)
		shards[s] = append(shards[s], v)
	}

	links := make([]Link, len(records))
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		shard := shard
		g.Go(func() error {
			for _, v := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				idx := byVehicle[v]
				sort.SliceStable(idx, func(a, b int) bool {
					ra, rb := &records[idx[a]], &records[idx[b]]
					if !ra.RefuelDate.Equal(rb.RefuelDate) {
						return ra.RefuelDate.Before(rb.RefuelDate)
					}
					return ra.SourceRowIndex < rb.SourceRowIndex
				})

				var prev *domain.RefuelState
				if last != nil {
					prev = last(gctx, v)
				}
				for _, i := range idx {
					links[i] = Link{Index: i, Record: records[i], Predecessor: prev}
					if opt.Visit != nil {
						opt.Visit(gctx, links[i])
					}
					prev = &domain.RefuelState{
						OdometerReading: records[i].OdometerReading,
						RefuelDate:      records[i].RefuelDate,
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return links, nil
}
