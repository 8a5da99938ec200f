package postgres

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"fuelimport/internal/storage/sqldb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrKeywordDSN is returned when a keyword/value DSN ("host=... user=...")
// is given to the migrator, which only understands URLs.
var ErrKeywordDSN = errors.New("postgres: migrations need a URL-style DSN")

// migrateURL rewrites a postgres:// or postgresql:// URL to the pgx5://
// scheme golang-migrate registers for the pgx v5 driver.
func migrateURL(dsn string) (string, error) {
	for _, p := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p), nil
		}
	}
	return "", ErrKeywordDSN
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	url, err := migrateURL(dsn)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. It is a no-op when the schema
// is current.
func MigrateUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(dsn string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrate down: steps must be > 0")
	}
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied version and whether the last
// migration left the schema dirty.
func MigrationVersion(dsn string) (uint, bool, error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// upStatements returns the statements of every up migration in order. It
// backs schema bootstrap when the DSN is not a URL.
func upStatements() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		b, err := migrationsFS.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, sqldb.SplitStatements(string(b))...)
	}
	return out, nil
}
