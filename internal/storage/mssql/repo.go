// Package mssql implements the SQL Server storage backend on top of sqldb.
package mssql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"fuelimport/internal/storage/sqldb"
)

//go:embed schema.sql
var schemaSQL string

// Dialect is the SQL Server flavour of sqldb.
var Dialect = sqldb.Dialect{
	Name:              "mssql",
	Driver:            "sqlserver",
	Placeholder:       sqldb.AtP,
	IsUniqueViolation: isUniqueViolation,
	First:             sqldb.Top1,
	Schema:            sqldb.SplitStatements(schemaSQL),
	// SQL Server rejects requests with more than 2100 parameters.
	MaxParams:         2000,
}

// Config holds MSSQL repository configuration.
type Config struct {
	DSN      string
	MaxConns int
}

// NewRepository validates the DSN, connects, and returns a Close function for
// cleanup.
func NewRepository(ctx context.Context, cfg Config) (*sqldb.Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	repo := sqldb.New(db, Dialect)
	return repo, repo.Close, nil
}

// isUniqueViolation matches error 2627 (constraint) and 2601 (unique index).
func isUniqueViolation(err error) bool {
	var me mssql.Error
	if errors.As(err, &me) {
		return me.Number == 2627 || me.Number == 2601
	}
	return false
}
