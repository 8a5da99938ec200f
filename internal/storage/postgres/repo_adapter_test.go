package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fuelimport/internal/config"
	"fuelimport/internal/storage"
)

// execRecorder satisfies storage.Repository through a nil *Repository and
// records Exec calls.
type execRecorder struct {
	*Repository
	stmts []string
}

func (e *execRecorder) Exec(ctx context.Context, sql string) error {
	e.stmts = append(e.stmts, sql)
	return nil
}
func (e *execRecorder) Close() {}

// TestPostgresRegistrationUsesNewRepositoryHook verifies that the backend
// registered in init() goes through the hook and keeps the DSN for
// migrations.
func TestPostgresRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{
		Kind:    "postgres",
		DSN:     "postgres://u:p@db/fleet",
		Options: config.Options{"max_conns": 12},
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if gotCfg.DSN != "postgres://u:p@db/fleet" || gotCfg.MaxConns != 12 {
		t.Fatalf("cfg got=%+v", gotCfg)
	}
	w, ok := repo.(*wrappedRepo)
	if !ok || w.dsn != "postgres://u:p@db/fleet" {
		t.Fatalf("wrapped repo got=%#v", repo)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close did not reach closeFn")
	}
}

func TestBootstrap_RunsMigrationsForURLDSN(t *testing.T) {
	orig := migrateUp
	defer func() { migrateUp = orig }()

	var got string
	migrateUp = func(dsn string) error { got = dsn; return nil }

	w := &wrappedRepo{Repository: &Repository{}, dsn: "postgres://x/y"}
	if err := storage.EnsureSchema(context.Background(), "postgres", w); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if got != "postgres://x/y" {
		t.Fatalf("migrateUp dsn got=%q", got)
	}
}

func TestBootstrap_FallsBackToExec(t *testing.T) {
	t.Parallel()
	rec := &execRecorder{}
	if err := bootstrap(context.Background(), rec); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	// fuel_records, its index, and four reference tables.
	if len(rec.stmts) != 6 {
		t.Fatalf("statements got=%d: %v", len(rec.stmts), rec.stmts)
	}
	if !strings.Contains(rec.stmts[0], "CREATE TABLE IF NOT EXISTS fuel_records") {
		t.Fatalf("first statement got=%q", rec.stmts[0])
	}
}

func TestBootstrap_MigrationErrorSurfaces(t *testing.T) {
	orig := migrateUp
	defer func() { migrateUp = orig }()

	boom := errors.New("dirty database version 2")
	migrateUp = func(string) error { return boom }
	w := &wrappedRepo{Repository: &Repository{}, dsn: "postgres://x/y"}
	if err := bootstrap(context.Background(), w); !errors.Is(err, boom) {
		t.Fatalf("err got=%v", err)
	}
}
