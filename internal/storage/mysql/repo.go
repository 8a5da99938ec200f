// Package mysql implements the MySQL storage backend on top of sqldb.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"fuelimport/internal/storage/sqldb"
)

//go:embed schema.sql
var schemaSQL string

// Dialect is the MySQL flavour of sqldb.
var Dialect = sqldb.Dialect{
	Name:              "mysql",
	Driver:            "mysql",
	Placeholder:       sqldb.QuestionMark,
	IsUniqueViolation: isUniqueViolation,
	First:             sqldb.Limit1,
	Schema:            sqldb.SplitStatements(schemaSQL),
}

// Config holds MySQL repository configuration.
type Config struct {
	DSN      string
	MaxConns int
}

// NewRepository parses the DSN, forces parseTime so DATE columns scan as
// time.Time, connects, and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*sqldb.Repository, func(), error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	repo := sqldb.New(db, Dialect)
	return repo, repo.Close, nil
}

func normalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

// isUniqueViolation matches ER_DUP_ENTRY.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
