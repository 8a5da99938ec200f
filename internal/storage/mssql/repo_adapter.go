package mssql

import (
	"context"

	"fuelimport/internal/storage"
	"fuelimport/internal/storage/sqldb"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.Options.Int("max_conns", 0),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mssql", func(ctx context.Context, repo storage.Repository) error {
		for _, stmt := range Dialect.Schema {
			if err := repo.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// wrappedRepo adapts *sqldb.Repository to storage.Repository and provides Close.
type wrappedRepo struct {
	*sqldb.Repository
	closeFn func()
}

func (w *wrappedRepo) Close() { w.closeFn() }
