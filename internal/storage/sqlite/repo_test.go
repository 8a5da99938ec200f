package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuelimport/internal/config"
	"fuelimport/internal/domain"
	"fuelimport/internal/storage"
	"fuelimport/internal/storage/sqldb"
)

/*
Package-level test helpers (TB-aware)
*/

func newRepo(tb testing.TB) *sqldb.Repository {
	tb.Helper()
	ctx := context.Background()
	r, closeFn, err := NewRepository(ctx, Config{DSN: ":memory:"})
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(closeFn)
	if err := storage.EnsureSchema(ctx, "sqlite", r); err != nil {
		tb.Fatalf("schema: %v", err)
	}
	return r
}

func mustExec(tb testing.TB, r *sqldb.Repository, stmt string) {
	tb.Helper()
	if err := r.Exec(context.Background(), stmt); err != nil {
		tb.Fatalf("exec %q: %v", stmt, err)
	}
}

func record(vehicle, date string, odo int64, liters string) domain.StoredRecord {
	d, _ := time.Parse(time.DateOnly, date)
	cost := decimal.RequireFromString("250.00")
	var r domain.StoredRecord
	r.ID = uuid.New()
	r.VehicleID = vehicle
	r.RefuelDate = d
	r.OdometerReading = odo
	r.Liters = decimal.RequireFromString(liters)
	r.TotalCost = &cost
	r.SourceRowIndex = int(odo % 1000)
	dist := int64(400)
	r.Analytics.DistanceSinceLastFill = &dist
	r.Analytics.HasHighFuelVolume = true
	return r
}

/*
Unit tests
*/

func TestInsertBatch_AndExistingKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRepo(t)

	first := []domain.StoredRecord{
		record("V1", "2024-03-01", 10000, "40.5"),
		record("V1", "2024-03-08", 10400, "38"),
	}
	ins, err := r.InsertBatch(ctx, first)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if !ins[0] || !ins[1] {
		t.Fatalf("inserted got=%v", ins)
	}

	keys := []domain.NaturalKey{first[0].Key(), first[1].Key(), {VehicleID: "V1", RefuelDate: "2024-03-09", OdometerReading: 1}}
	got, err := r.ExistingKeys(ctx, keys)
	if err != nil {
		t.Fatalf("ExistingKeys: %v", err)
	}
	if len(got) != 2 || !got[keys[0]] || !got[keys[1]] {
		t.Fatalf("existing got=%v", got)
	}

	// A row colliding on the natural key is reported, the rest commit.
	again := []domain.StoredRecord{
		record("V1", "2024-03-08", 10400, "38"),
		record("V1", "2024-03-15", 10800, "41"),
	}
	ins, err = r.InsertBatch(ctx, again)
	if err != nil {
		t.Fatalf("InsertBatch (dup): %v", err)
	}
	if ins[0] || !ins[1] {
		t.Fatalf("inserted got=%v", ins)
	}

	var n int
	if err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM fuel_records").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows got=%d want 3", n)
	}

	var liters string
	var flag bool
	if err := r.DB().QueryRowContext(ctx,
		"SELECT liters, has_high_fuel_volume FROM fuel_records WHERE odometer_reading = 10000").Scan(&liters, &flag); err != nil {
		t.Fatalf("select: %v", err)
	}
	if liters != "40.5" || !flag {
		t.Fatalf("stored liters=%q flag=%v", liters, flag)
	}
}

func TestExistingKeys_Empty(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	got, err := r.ExistingKeys(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestExistingKeys_SplitsLargeKeySets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := newRepo(t)

	d := Dialect
	d.MaxParams = 6
	r := sqldb.New(base.DB(), d)

	var (
		recs []domain.StoredRecord
		keys []domain.NaturalKey
	)
	for i := 0; i < 5; i++ {
		rec := record("V9", "2024-05-01", int64(20000+i*100), "30")
		recs = append(recs, rec)
		keys = append(keys, rec.Key())
	}
	if _, err := r.InsertBatch(ctx, recs); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	keys = append(keys, domain.NaturalKey{VehicleID: "V9", RefuelDate: "2024-05-02", OdometerReading: 1})

	got, err := r.ExistingKeys(ctx, keys)
	if err != nil {
		t.Fatalf("ExistingKeys: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("existing got=%d want 5: %v", len(got), got)
	}
	for _, k := range keys[:5] {
		if !got[k] {
			t.Fatalf("key %+v missing", k)
		}
	}
}

func TestMostRecentRefuel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRepo(t)

	st, err := r.GetMostRecentRefuel(ctx, "V9")
	if err != nil || st != nil {
		t.Fatalf("empty vehicle: st=%v err=%v", st, err)
	}
	if _, err := r.InsertBatch(ctx, []domain.StoredRecord{
		record("V9", "2024-01-10", 5000, "30"),
		record("V9", "2024-02-10", 5600, "31"),
		record("V9", "2024-02-10", 5550, "12"),
	}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	st, err = r.GetMostRecentRefuel(ctx, "V9")
	if err != nil || st == nil {
		t.Fatalf("st=%v err=%v", st, err)
	}
	if st.OdometerReading != 5600 || st.RefuelDate.Format(time.DateOnly) != "2024-02-10" {
		t.Fatalf("most recent got=%+v", st)
	}
}

func TestLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRepo(t)
	mustExec(t, r, `INSERT INTO vehicles (id, fuel_capacity, registration_date, fuel_type, region)
		VALUES ('V1', '55', '2020-05-01', 'diesel', 'SP'), ('V2', NULL, NULL, NULL, NULL)`)
	mustExec(t, r, `INSERT INTO drivers (id) VALUES ('D1')`)
	mustExec(t, r, `INSERT INTO fuel_stations (id) VALUES ('S1')`)
	mustExec(t, r, `INSERT INTO fuel_reference_prices (fuel_type, price_year, price_month, region, price_per_liter)
		VALUES ('diesel', 2024, 3, '', '5.899'), ('diesel', 2024, 3, 'SP', '6.120')`)

	c, ok, err := r.GetCapacity(ctx, "V1")
	if err != nil || !ok || !c.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("capacity V1: %v %v %v", c, ok, err)
	}
	if _, ok, err := r.GetCapacity(ctx, "V2"); err != nil || ok {
		t.Fatalf("capacity V2 should be unknown: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.GetCapacity(ctx, "nope"); err != nil || ok {
		t.Fatalf("capacity unknown vehicle: ok=%v err=%v", ok, err)
	}

	d, ok, err := r.GetDetails(ctx, "V1")
	if err != nil || !ok {
		t.Fatalf("details: ok=%v err=%v", ok, err)
	}
	if d.FuelType != "diesel" || d.Region != "SP" || d.RegistrationDate == nil ||
		d.RegistrationDate.Format(time.DateOnly) != "2020-05-01" {
		t.Fatalf("details got=%+v", d)
	}

	p, ok, err := r.GetFuelPrice(ctx, "diesel", 2024, time.March, "SP")
	if err != nil || !ok || p.String() != "6.12" {
		t.Fatalf("regional price: %v %v %v", p, ok, err)
	}
	p, ok, err = r.GetFuelPrice(ctx, "diesel", 2024, time.March, "RJ")
	if err != nil || !ok || p.String() != "5.899" {
		t.Fatalf("national fallback: %v %v %v", p, ok, err)
	}
	if _, ok, _ := r.GetFuelPrice(ctx, "diesel", 2024, time.April, "SP"); ok {
		t.Fatalf("april price should be missing")
	}

	for _, tc := range []struct {
		name string
		fn   func(context.Context, string) (bool, error)
		id   string
		want bool
	}{
		{"vehicle", r.Vehicle, "V2", true},
		{"vehicle missing", r.Vehicle, "V3", false},
		{"driver", r.Driver, "D1", true},
		{"driver missing", r.Driver, "D2", false},
		{"station", r.FuelStation, "S1", true},
		{"station missing", r.FuelStation, "S9", false},
	} {
		got, err := tc.fn(ctx, tc.id)
		if err != nil || got != tc.want {
			t.Fatalf("%s: got=%v err=%v", tc.name, got, err)
		}
	}
}

func TestIsUniqueViolation_NonSQLiteError(t *testing.T) {
	t.Parallel()
	if isUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Fatalf("plain error must not match")
	}
}

func TestRegisteredFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:", Options: config.Options{}})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	if err := storage.EnsureSchema(ctx, "sqlite", repo); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Idempotent.
	if err := storage.EnsureSchema(ctx, "sqlite", repo); err != nil {
		t.Fatalf("EnsureSchema (again): %v", err)
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()
	c := configFrom("x.db", config.Options{"busy_timeout_ms": 100, "max_conns": 2})
	if c.DSN != "x.db" || c.BusyTimeoutMs != 100 || c.MaxConns != 2 {
		t.Fatalf("config got=%+v", c)
	}
}
