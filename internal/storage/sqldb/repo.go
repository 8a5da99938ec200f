package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
)

// Repository is a database/sql backed storage.Repository.
type Repository struct {
	db *sql.DB
	d  Dialect

	insertSQL string
}

// Open opens dsn with the dialect's driver and pings it.
func Open(ctx context.Context, d Dialect, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Name)
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}
	return New(db, d), nil
}

// New wraps an already-open handle.
func New(db *sql.DB, d Dialect) *Repository {
	return &Repository{
		db: db,
		d:  d,
		insertSQL: fmt.Sprintf("INSERT INTO fuel_records (%s) VALUES (%s)",
			strings.Join(RecordColumns, ", "), d.placeholders(1, len(RecordColumns))),
	}
}

// DB exposes the handle for tests and seeding.
func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Close() { _ = r.db.Close() }

// Exec executes a single statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: exec: %w", r.d.Name, err)
	}
	return nil
}

// EnsureSchema applies the dialect's DDL.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, s := range r.d.Schema {
		if err := r.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// ExistingKeys probes the natural-key index with one OR-ed predicate per key.
// Keys are split across statements so no statement exceeds the dialect's
// bind parameter limit.
func (r *Repository) ExistingKeys(ctx context.Context, keys []domain.NaturalKey) (map[domain.NaturalKey]bool, error) {
	out := make(map[domain.NaturalKey]bool)
	step := r.d.keysPerQuery()
	for off := 0; off < len(keys); off += step {
		end := off + step
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.existingChunk(ctx, keys[off:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) existingChunk(ctx context.Context, keys []domain.NaturalKey, out map[domain.NaturalKey]bool) error {
	var (
		conds = make([]string, 0, len(keys))
		args  = make([]any, 0, len(keys)*3)
	)
	for i, k := range keys {
		n := i*3 + 1
		conds = append(conds, fmt.Sprintf("(vehicle_id = %s AND refuel_date = %s AND odometer_reading = %s)",
			r.d.Placeholder(n), r.d.Placeholder(n+1), r.d.Placeholder(n+2)))
		args = append(args, k.VehicleID, k.RefuelDate, k.OdometerReading)
	}
	q := "SELECT vehicle_id, refuel_date, odometer_reading FROM fuel_records WHERE " + strings.Join(conds, " OR ")
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: existing keys: %w", r.d.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k    domain.NaturalKey
			date any
		)
		if err := rows.Scan(&k.VehicleID, &date, &k.OdometerReading); err != nil {
			return fmt.Errorf("%s: existing keys: %w", r.d.Name, err)
		}
		if s, ok := dateString(date); ok {
			k.RefuelDate = s
			out[k] = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: existing keys: %w", r.d.Name, err)
	}
	return nil
}

// InsertBatch inserts recs in one transaction with a prepared statement. A
// unique violation on a row only marks that row; the statement-level error
// leaves the transaction usable on all three dialects. Any other error rolls
// the whole batch back.
func (r *Repository) InsertBatch(ctx context.Context, recs []domain.StoredRecord) ([]bool, error) {
	inserted := make([]bool, len(recs))
	if len(recs) == 0 {
		return inserted, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", r.d.Name, err)
	}
	stmt, err := tx.PrepareContext(ctx, r.insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: prepare insert: %w", r.d.Name, err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		if _, err := stmt.ExecContext(ctx, recordArgs(rec)...); err != nil {
			if r.d.IsUniqueViolation != nil && r.d.IsUniqueViolation(err) {
				continue
			}
			_ = tx.Rollback()
			return nil, fmt.Errorf("%s: insert row %d: %w", r.d.Name, rec.SourceRowIndex, err)
		}
		inserted[i] = true
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", r.d.Name, err)
	}
	return inserted, nil
}

func (r *Repository) GetCapacity(ctx context.Context, vehicleID string) (decimal.Decimal, bool, error) {
	var s sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT fuel_capacity FROM vehicles WHERE id = "+r.d.Placeholder(1), vehicleID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%s: capacity: %w", r.d.Name, err)
	}
	if !s.Valid {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%s: capacity %q: %w", r.d.Name, s.String, err)
	}
	return d, true, nil
}

func (r *Repository) GetMostRecentRefuel(ctx context.Context, vehicleID string) (*domain.RefuelState, error) {
	q := r.d.First("odometer_reading, refuel_date",
		"FROM fuel_records WHERE vehicle_id = "+r.d.Placeholder(1)+" ORDER BY refuel_date DESC, odometer_reading DESC")
	var (
		odo  int64
		date any
	)
	err := r.db.QueryRowContext(ctx, q, vehicleID).Scan(&odo, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: most recent refuel: %w", r.d.Name, err)
	}
	s, ok := dateString(date)
	if !ok {
		return nil, fmt.Errorf("%s: most recent refuel: unexpected date %v", r.d.Name, date)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%s: most recent refuel: %w", r.d.Name, err)
	}
	return &domain.RefuelState{OdometerReading: odo, RefuelDate: t}, nil
}

func (r *Repository) GetDetails(ctx context.Context, vehicleID string) (domain.VehicleDetails, bool, error) {
	var (
		reg          any
		fuel, region sql.NullString
		details      domain.VehicleDetails
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT registration_date, fuel_type, region FROM vehicles WHERE id = "+r.d.Placeholder(1), vehicleID).
		Scan(&reg, &fuel, &region)
	if errors.Is(err, sql.ErrNoRows) {
		return details, false, nil
	}
	if err != nil {
		return details, false, fmt.Errorf("%s: vehicle details: %w", r.d.Name, err)
	}
	if s, ok := dateString(reg); ok {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			details.RegistrationDate = &t
		}
	}
	details.FuelType = fuel.String
	details.Region = region.String
	return details, true, nil
}

// GetFuelPrice prefers a region-specific price and falls back to the
// national one (empty region).
func (r *Repository) GetFuelPrice(ctx context.Context, fuelType string, year int, month time.Month, region string) (decimal.Decimal, bool, error) {
	p := r.d.Placeholder
	q := r.d.First("price_per_liter",
		fmt.Sprintf("FROM fuel_reference_prices WHERE fuel_type = %s AND price_year = %s AND price_month = %s AND (region = %s OR region = '') ORDER BY region DESC",
			p(1), p(2), p(3), p(4)))
	var s string
	err := r.db.QueryRowContext(ctx, q, fuelType, year, int(month), region).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%s: fuel price: %w", r.d.Name, err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%s: fuel price %q: %w", r.d.Name, s, err)
	}
	return d, true, nil
}

func (r *Repository) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = "+r.d.Placeholder(1), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %s exists: %w", r.d.Name, table, err)
	}
	return true, nil
}

func (r *Repository) Vehicle(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "vehicles", id)
}

func (r *Repository) Driver(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "drivers", id)
}

func (r *Repository) FuelStation(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "fuel_stations", id)
}
