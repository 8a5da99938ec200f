package postgres

import (
	"context"
	"errors"
	"fmt"

	"fuelimport/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// migrateUp is swapped by tests.
var migrateUp = MigrateUp

// wrappedRepo implements storage.Repository by delegating to the concrete
// *postgres.Repository while providing a Close method that calls the close
// function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	dsn     string
	closeFn func()
}

// Ensure wrappedRepo satisfies storage.Repository at compile time.
var _ storage.Repository = (*wrappedRepo)(nil)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// bootstrap runs the migrations, or executes the up scripts directly when
// the DSN is in keyword form.
func bootstrap(ctx context.Context, repo storage.Repository) error {
	if w, ok := repo.(*wrappedRepo); ok {
		err := migrateUp(w.dsn)
		if !errors.Is(err, ErrKeywordDSN) {
			return err
		}
	}
	stmts, err := upStatements()
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, s := range stmts {
		if err := repo.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply DDL: %w", err)
		}
	}
	return nil
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:      cfg.DSN,
			MaxConns: int32(cfg.Options.Int("max_conns", 0)),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, dsn: cfg.DSN, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("postgres", bootstrap)
}
