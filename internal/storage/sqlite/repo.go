package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fuelimport/internal/storage/sqldb"
)

//go:embed schema.sql
var schemaSQL string

// Dialect is the SQLite flavour of sqldb.
var Dialect = sqldb.Dialect{
	Name:              "sqlite",
	Driver:            "sqlite",
	Placeholder:       sqldb.QuestionMark,
	IsUniqueViolation: isUniqueViolation,
	First:             sqldb.Limit1,
	Schema:            sqldb.SplitStatements(schemaSQL),
}

// NewRepository opens a SQLite database and returns the repository plus a
// close function.
func NewRepository(ctx context.Context, cfg Config) (*sqldb.Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if isMemory(cfg.DSN) || cfg.MaxConns == 1 {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if cfg.BusyTimeoutMs > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMs))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	repo := sqldb.New(db, Dialect)
	return repo, repo.Close, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// isUniqueViolation matches UNIQUE and PRIMARY KEY constraint failures. The
// driver reports extended result codes; the message check covers builds
// that only surface the primary SQLITE_CONSTRAINT code.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
