// Package mysql provides a MySQL-backed storage.Repository implementation.
// This adapter wires the MySQL backend into the storage-agnostic factory.
package mysql

import (
	"context"

	"fuelimport/internal/storage"
	"fuelimport/internal/storage/sqldb"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

var _ storage.Repository = (*wrappedRepo)(nil)

// init registers the "mysql" backend with the factory.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.Options.Int("max_conns", 0),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mysql", func(ctx context.Context, repo storage.Repository) error {
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

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() { w.closeFn() }
