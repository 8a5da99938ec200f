//go:build integration

package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"fuelimport/internal/storage"
)

// getTestDSN reads the MSSQL_TEST_DSN environment variable.
// If it is empty, the caller should skip the test.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MSSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MSSQL_TEST_DSN not set; skipping MSSQL integration tests")
	}
	return dsn
}

// TestNewRepositoryIntegration connects to a real SQL Server, applies the
// schema twice and probes an empty key set.
func TestNewRepositoryIntegration(t *testing.T) {
	dsn := getTestDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closeFn, err := NewRepository(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewRepository() error = %v, want nil", err)
	}
	defer closeFn()

	for i := 0; i < 2; i++ {
		if err := storage.EnsureSchema(ctx, "mssql", repo); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i+1, err)
		}
	}
	if _, err := repo.ExistingKeys(ctx, nil); err != nil {
		t.Fatalf("ExistingKeys: %v", err)
	}
}
