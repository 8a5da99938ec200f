package sequencer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fuelimport/internal/domain"
)

func rec(row int, vehicle string, day int, odo int64) domain.ValidatedRecord {
	return domain.ValidatedRecord{ImportCandidate: domain.ImportCandidate{
		VehicleID:       vehicle,
		RefuelDate:      time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		OdometerReading: odo,
		SourceRowIndex:  row,
	}}
}

func Test_Sequence_OrdersPerVehicle(t *testing.T) {
	t.Parallel()
	records := []domain.ValidatedRecord{
		rec(1, "V1", 3, 1300),
		rec(2, "V2", 1, 50),
		rec(3, "V1", 1, 1000),
		rec(4, "V1", 2, 1100),
		rec(5, "V1", 2, 1150), // same date as row 4: row order breaks the tie
	}
	persisted := &domain.RefuelState{OdometerReading: 900, RefuelDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)}
	var calls atomic.Int64
	last := func(ctx context.Context, v string) *domain.RefuelState {
		calls.Add(1)
		if v == "V1" {
			return persisted
		}
		return nil
	}

	links, err := Sequence(context.Background(), records, last, Options{Concurrency: 3})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if len(links) != len(records) {
		t.Fatalf("links got=%d", len(links))
	}
	want := map[int]int64{ // row -> predecessor odometer (-1 = none)
		1: 1150,
		2: -1,
		3: 900,
		4: 1000,
		5: 1100,
	}
	for i, l := range links {
		if l.Index != i || l.Record.SourceRowIndex != records[i].SourceRowIndex {
			t.Fatalf("link %d misaligned: %+v", i, l)
		}
		w := want[l.Record.SourceRowIndex]
		switch {
		case w == -1 && l.Predecessor != nil:
			t.Fatalf("row %d predecessor got=%+v want nil", l.Record.SourceRowIndex, l.Predecessor)
		case w != -1 && (l.Predecessor == nil || l.Predecessor.OdometerReading != w):
			t.Fatalf("row %d predecessor got=%+v want odo %d", l.Record.SourceRowIndex, l.Predecessor, w)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("last persisted calls got=%d want=2", calls.Load())
	}
}

func Test_Sequence_DeterministicAcrossConcurrency(t *testing.T) {
	t.Parallel()
	var records []domain.ValidatedRecord
	for i := 0; i < 200; i++ {
		v := string(rune('A' + i%7))
		records = append(records, rec(i+1, v, 1+(i*13)%28, int64(i*10)))
	}
	base, err := Sequence(context.Background(), records, nil, Options{Concurrency: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{2, 4, 16} {
		got, err := Sequence(context.Background(), records, nil, Options{Concurrency: n})
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			a, b := base[i].Predecessor, got[i].Predecessor
			if (a == nil) != (b == nil) || (a != nil && *a != *b) {
				t.Fatalf("concurrency=%d link %d differs: %+v vs %+v", n, i, a, b)
			}
		}
	}
}

func Test_Sequence_VisitChronological(t *testing.T) {
	t.Parallel()
	records := []domain.ValidatedRecord{rec(1, "V1", 5, 500), rec(2, "V1", 1, 100), rec(3, "V1", 3, 300)}
	var (
		mu   sync.Mutex
		seen []int
	)
	_, err := Sequence(context.Background(), records, nil, Options{Visit: func(ctx context.Context, l Link) {
		mu.Lock()
		seen = append(seen, l.Record.SourceRowIndex)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != 2 || seen[1] != 3 || seen[2] != 1 {
		t.Fatalf("visit order got=%v want [2 3 1]", seen)
	}
}

func Test_Sequence_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sequence(ctx, []domain.ValidatedRecord{rec(1, "V1", 1, 1)}, nil, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err got=%v", err)
	}
}
