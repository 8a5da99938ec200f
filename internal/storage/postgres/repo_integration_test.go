//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping Postgres integration tests")
	}
	return dsn
}

func TestInsertBatchIntegration(t *testing.T) {
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := MigrateUp(dsn); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	repo, closeFn, err := NewRepository(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer closeFn()

	vehicle := "IT-" + uuid.NewString()[:8]
	mk := func(odo int64) domain.StoredRecord {
		var r domain.StoredRecord
		r.ID = uuid.New()
		r.VehicleID = vehicle
		r.RefuelDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		r.OdometerReading = odo
		r.Liters = decimal.RequireFromString("41.5")
		return r
	}
	ins, err := repo.InsertBatch(ctx, []domain.StoredRecord{mk(100), mk(200)})
	if err != nil || !ins[0] || !ins[1] {
		t.Fatalf("first insert: %v %v", ins, err)
	}
	ins, err = repo.InsertBatch(ctx, []domain.StoredRecord{mk(200), mk(300)})
	if err != nil || ins[0] || !ins[1] {
		t.Fatalf("second insert: %v %v", ins, err)
	}
	st, err := repo.GetMostRecentRefuel(ctx, vehicle)
	if err != nil || st == nil || st.OdometerReading != 300 {
		t.Fatalf("most recent: %+v %v", st, err)
	}
}
