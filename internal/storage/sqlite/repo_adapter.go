package sqlite

import (
	"context"

	"fuelimport/internal/storage"
	"fuelimport/internal/storage/sqldb"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *sqldb.Repository to storage.Repository, routing Close
// through the cleanup function returned by NewRepository.
type wrappedRepo struct {
	*sqldb.Repository
	closeFn func()
}

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, configFrom(cfg.DSN, cfg.Options))
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("sqlite", func(ctx context.Context, repo storage.Repository) error {
		for _, stmt := range Dialect.Schema {
			if err := repo.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
