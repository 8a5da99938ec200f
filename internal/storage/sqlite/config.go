// Package sqlite implements the SQLite storage backend on top of sqldb.
package sqlite

import "fuelimport/internal/config"

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:fuelimport.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// BusyTimeoutMs is applied with PRAGMA busy_timeout after open.
	BusyTimeoutMs int

	// MaxConns caps open connections. In-memory databases are always
	// pinned to one connection so every query sees the same database.
	MaxConns int
}

func configFrom(dsn string, opts config.Options) Config {
	return Config{
		DSN:           dsn,
		BusyTimeoutMs: opts.Int("busy_timeout_ms", 5000),
		MaxConns:      opts.Int("max_conns", 4),
	}
}
