package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
	"fuelimport/internal/lookup"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newValidator(m *lookup.Memory) *Validator {
	g := lookup.NewGuard(m.Collaborators(), time.Second, nil)
	return New(g, Options{Now: func() time.Time { return fixedNow }})
}

func candidate(vehicle string, date time.Time, odo int64, liters string) domain.ImportCandidate {
	return domain.ImportCandidate{
		VehicleID:       vehicle,
		RefuelDate:      date,
		OdometerReading: odo,
		Liters:          decimal.RequireFromString(liters),
		SourceRowIndex:  1,
	}
}

func kinds(ds []domain.Diagnostic) []domain.DiagnosticKind {
	out := make([]domain.DiagnosticKind, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func hasKind(ds []domain.Diagnostic, k domain.DiagnosticKind) bool {
	for _, d := range ds {
		if d.Kind == k {
			return true
		}
	}
	return false
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func Test_Validate_Accepts(t *testing.T) {
	t.Parallel()
	v := newValidator(&lookup.Memory{AllowUnknown: true})
	rec, errs := v.Validate(context.Background(), candidate("V1", day(2024, 6, 15), 1000, "40"))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", kinds(errs))
	}
	if rec.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("validated record must get an ID")
	}
	if rec.VehicleID != "V1" {
		t.Fatalf("candidate not carried: %+v", rec)
	}
}

func Test_Validate_Rules(t *testing.T) {
	t.Parallel()
	reg := day(2024, 3, 1)
	m := &lookup.Memory{
		Capacities: map[string]decimal.Decimal{"CAP": decimal.NewFromInt(60)},
		Vehicles: map[string]domain.VehicleDetails{
			"CAP": {},
			"REG": {RegistrationDate: &reg},
			"V1":  {},
		},
		Drivers:  map[string]bool{"D1": true},
		Stations: map[string]bool{"S1": true},
	}
	v := newValidator(m)
	ghost := "D404"

	cases := []struct {
		name string
		c    domain.ImportCandidate
		want domain.DiagnosticKind
	}{
		{"negative odometer", candidate("V1", day(2024, 5, 1), -1, "40"), domain.KindNegativeOdometer},
		{"zero liters", candidate("V1", day(2024, 5, 1), 10, "0"), domain.KindImplausibleVolume},
		{"over capacity", candidate("CAP", day(2024, 5, 1), 10, "90.5"), domain.KindImplausibleVolume},
		{"over fixed bound", candidate("V1", day(2024, 5, 1), 10, "500.01"), domain.KindImplausibleVolume},
		{"future", candidate("V1", day(2024, 6, 16), 10, "40"), domain.KindFutureDate},
		{"before registration", candidate("REG", day(2024, 2, 28), 10, "40"), domain.KindBeforeRegistration},
		{"unknown vehicle", candidate("NOPE", day(2024, 5, 1), 10, "40"), domain.KindUnknownReference},
		{"unknown driver", func() domain.ImportCandidate {
			c := candidate("V1", day(2024, 5, 1), 10, "40")
			c.DriverID = &ghost
			return c
		}(), domain.KindUnknownReference},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, errs := v.Validate(context.Background(), tc.c)
			if !hasKind(errs, tc.want) {
				t.Fatalf("kinds got=%v want %s", kinds(errs), tc.want)
			}
		})
	}
}

func Test_Validate_Boundaries(t *testing.T) {
	t.Parallel()
	m := &lookup.Memory{
		Capacities: map[string]decimal.Decimal{"CAP": decimal.NewFromInt(60)},
		Vehicles:   map[string]domain.VehicleDetails{"CAP": {}, "V1": {}},
	}
	v := newValidator(m)
	ctx := context.Background()

	// Exactly capacity * 1.5 and exactly the fixed bound are accepted.
	if _, errs := v.Validate(ctx, candidate("CAP", day(2024, 5, 1), 10, "90")); len(errs) != 0 {
		t.Fatalf("90 L on 60 L tank: %v", kinds(errs))
	}
	if _, errs := v.Validate(ctx, candidate("V1", day(2024, 5, 1), 10, "500")); len(errs) != 0 {
		t.Fatalf("500 L without capacity: %v", kinds(errs))
	}
	// Today is not the future, whatever the hour.
	if _, errs := v.Validate(ctx, candidate("V1", time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC), 10, "40")); len(errs) != 0 {
		t.Fatalf("today: %v", kinds(errs))
	}
}

func Test_Validate_CollectsEveryViolation(t *testing.T) {
	t.Parallel()
	v := newValidator(&lookup.Memory{})
	_, errs := v.Validate(context.Background(), candidate("NOPE", day(2030, 1, 1), -5, "-1"))
	for _, k := range []domain.DiagnosticKind{
		domain.KindNegativeOdometer, domain.KindImplausibleVolume, domain.KindFutureDate, domain.KindUnknownReference,
	} {
		if !hasKind(errs, k) {
			t.Fatalf("missing %s in %v", k, kinds(errs))
		}
	}
}

func Test_Validate_LookupFailureIsHard(t *testing.T) {
	t.Parallel()
	m := &lookup.Memory{Err: errors.New("db down")}
	v := newValidator(m)
	_, errs := v.Validate(context.Background(), candidate("V1", day(2024, 5, 1), 10, "40"))
	if !hasKind(errs, domain.KindReferenceLookupFailed) {
		t.Fatalf("kinds got=%v", kinds(errs))
	}
	// Capacity failure alone degrades to the fixed bound; no ImplausibleVolume.
	if hasKind(errs, domain.KindImplausibleVolume) {
		t.Fatalf("capacity lookup failure must not reject volume: %v", kinds(errs))
	}
}

func Test_MarkDuplicates(t *testing.T) {
	t.Parallel()
	mk := func(row int, vehicle string, date time.Time, odo int64) domain.ValidatedRecord {
		c := candidate(vehicle, date, odo, "40")
		c.SourceRowIndex = row
		return domain.ValidatedRecord{ImportCandidate: c}
	}
	recs := []domain.ValidatedRecord{
		mk(1, "V1", day(2024, 1, 1), 100),
		mk(2, "V2", day(2024, 1, 1), 100),
		mk(3, "V1", day(2024, 1, 1).Add(5*time.Hour), 100), // same date, later hour
		mk(4, "V1", day(2024, 1, 1), 101),
		mk(5, "V1", day(2024, 1, 1), 100),
	}
	kept, dups := MarkDuplicates(recs)
	if len(kept) != 3 || len(dups) != 2 {
		t.Fatalf("kept=%d dups=%d want 3/2", len(kept), len(dups))
	}
	if kept[0].SourceRowIndex != 1 || kept[1].SourceRowIndex != 2 || kept[2].SourceRowIndex != 4 {
		t.Fatalf("kept rows got=%d,%d,%d", kept[0].SourceRowIndex, kept[1].SourceRowIndex, kept[2].SourceRowIndex)
	}
	for _, d := range dups {
		if len(d.Warnings) != 1 || d.Warnings[0].Kind != domain.KindDuplicateInBatch {
			t.Fatalf("dup row %d warnings got=%+v", d.SourceRowIndex, d.Warnings)
		}
	}
	if len(recs[2].Warnings) != 0 {
		t.Fatalf("input records must not be mutated")
	}
}
