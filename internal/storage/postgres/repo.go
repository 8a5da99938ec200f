// Package postgres implements the Postgres storage backend using pgx v5. A
// batch is COPY'd into a transaction-scoped temporary table and then moved
// into fuel_records with ON CONFLICT DO NOTHING, so rows that collide on the
// natural key are reported instead of failing the batch.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
	"fuelimport/internal/storage/sqldb"
)

const (
	targetTable = "fuel_records"
	stageTable  = "tmp_fuel_records"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN      string // connection string for pgxpool
	MaxConns int32  // pool size; 0 keeps the pgxpool default
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, sql)
	return describe("exec", err)
}

// ExistingKeys joins the key set, sent as three parallel arrays, against the
// natural-key index.
func (r *Repository) ExistingKeys(ctx context.Context, keys []domain.NaturalKey) (map[domain.NaturalKey]bool, error) {
	out := make(map[domain.NaturalKey]bool)
	if len(keys) == 0 {
		return out, nil
	}
	var (
		vehicles = make([]string, len(keys))
		dates    = make([]time.Time, len(keys))
		odos     = make([]int64, len(keys))
	)
	for i, k := range keys {
		d, err := time.Parse(time.DateOnly, k.RefuelDate)
		if err != nil {
			return nil, fmt.Errorf("existing keys: %w", err)
		}
		vehicles[i], dates[i], odos[i] = k.VehicleID, d, k.OdometerReading
	}
	rows, err := r.pool.Query(ctx, `
		SELECT f.vehicle_id, f.refuel_date, f.odometer_reading
		FROM fuel_records f
		JOIN unnest($1::text[], $2::date[], $3::bigint[]) AS k(vehicle_id, refuel_date, odometer_reading)
		  USING (vehicle_id, refuel_date, odometer_reading)`,
		vehicles, dates, odos)
	if err != nil {
		return nil, describe("existing keys", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k domain.NaturalKey
			d time.Time
		)
		if err := rows.Scan(&k.VehicleID, &d, &k.OdometerReading); err != nil {
			return nil, describe("existing keys", err)
		}
		k.RefuelDate = d.Format(time.DateOnly)
		out[k] = true
	}
	return out, describe("existing keys", rows.Err())
}

// InsertBatch stages recs with COPY and inserts them in one transaction.
func (r *Repository) InsertBatch(ctx context.Context, recs []domain.StoredRecord) ([]bool, error) {
	inserted := make([]bool, len(recs))
	if len(recs) == 0 {
		return inserted, nil
	}
	cols := sqldb.RecordColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, describe("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgIdent(stageTable), pgIdent(targetTable),
	)); err != nil {
		return nil, describe("create temp", err)
	}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = copyRow(rec)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stageTable}, cols, pgx.CopyFromRows(rows)); err != nil {
		return nil, describe("copy into temp", err)
	}

	list := strings.Join(mapIdent(cols), ", ")
	res, err := tx.Query(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) SELECT %s FROM %s
		 ON CONFLICT (vehicle_id, refuel_date, odometer_reading) DO NOTHING
		 RETURNING id`,
		pgIdent(targetTable), list, list, pgIdent(stageTable),
	))
	if err != nil {
		return nil, describe("insert phase", err)
	}
	written := make(map[uuid.UUID]bool, len(recs))
	for res.Next() {
		var id pgtype.UUID
		if err := res.Scan(&id); err != nil {
			res.Close()
			return nil, describe("insert phase", err)
		}
		written[uuid.UUID(id.Bytes)] = true
	}
	res.Close()
	if err := res.Err(); err != nil {
		return nil, describe("insert phase", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, describe("commit", err)
	}
	for i, rec := range recs {
		inserted[i] = written[rec.ID]
	}
	return inserted, nil
}

func (r *Repository) GetCapacity(ctx context.Context, vehicleID string) (decimal.Decimal, bool, error) {
	var s *string
	err := r.pool.QueryRow(ctx, "SELECT fuel_capacity::text FROM vehicles WHERE id = $1", vehicleID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && s == nil) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, describe("capacity", err)
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("capacity %q: %w", *s, err)
	}
	return d, true, nil
}

func (r *Repository) GetMostRecentRefuel(ctx context.Context, vehicleID string) (*domain.RefuelState, error) {
	var st domain.RefuelState
	err := r.pool.QueryRow(ctx, `
		SELECT odometer_reading, refuel_date FROM fuel_records
		WHERE vehicle_id = $1
		ORDER BY refuel_date DESC, odometer_reading DESC
		LIMIT 1`, vehicleID).Scan(&st.OdometerReading, &st.RefuelDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, describe("most recent refuel", err)
	}
	return &st, nil
}

func (r *Repository) GetDetails(ctx context.Context, vehicleID string) (domain.VehicleDetails, bool, error) {
	var (
		d            domain.VehicleDetails
		fuel, region *string
	)
	err := r.pool.QueryRow(ctx,
		"SELECT registration_date, fuel_type, region FROM vehicles WHERE id = $1", vehicleID).
		Scan(&d.RegistrationDate, &fuel, &region)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, false, nil
	}
	if err != nil {
		return d, false, describe("vehicle details", err)
	}
	if fuel != nil {
		d.FuelType = *fuel
	}
	if region != nil {
		d.Region = *region
	}
	return d, true, nil
}

// GetFuelPrice prefers a region-specific price and falls back to the
// national one (empty region).
func (r *Repository) GetFuelPrice(ctx context.Context, fuelType string, year int, month time.Month, region string) (decimal.Decimal, bool, error) {
	var s string
	err := r.pool.QueryRow(ctx, `
		SELECT price_per_liter::text FROM fuel_reference_prices
		WHERE fuel_type = $1 AND price_year = $2 AND price_month = $3 AND region IN ($4, '')
		ORDER BY region DESC
		LIMIT 1`, fuelType, year, int(month), region).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, describe("fuel price", err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("fuel price %q: %w", s, err)
	}
	return d, true, nil
}

func (r *Repository) exists(ctx context.Context, table, id string) (bool, error) {
	var ok bool
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", pgIdent(table))
	if err := r.pool.QueryRow(ctx, q, id).Scan(&ok); err != nil {
		return false, describe(table+" exists", err)
	}
	return ok, nil
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

// copyRow encodes rec in sqldb.RecordColumns order using pgtype values that
// pgx can send in COPY's binary format.
func copyRow(rec domain.StoredRecord) []any {
	a := rec.Analytics
	return []any{
		pgtype.UUID{Bytes: rec.ID, Valid: true},
		rec.VehicleID,
		rec.DriverID,
		pgtype.Date{Time: rec.RefuelDate, Valid: true},
		rec.OdometerReading,
		numeric(&rec.Liters),
		numeric(rec.TotalCost),
		numeric(rec.CostPerLiter),
		rec.FuelStationID,
		rec.FuelType,
		rec.Region,
		rec.FullTank,
		rec.Notes,
		int32(rec.SourceRowIndex),
		a.DistanceSinceLastFill,
		numeric(a.FuelEfficiencyLPer100Km),
		numeric(a.KmPerLiter),
		numeric(a.PricePerLiter),
		numeric(a.ReferencePricePerLiter),
		a.HasNegativeMileage,
		a.HasHighMileageJump,
		a.HasHighFuelVolume,
		a.HasUnusualFuelPrice,
	}
}

// numeric converts a decimal exactly; nil becomes SQL NULL.
func numeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// describe wraps err with op, surfacing the server's detail and SQLSTATE
// when Postgres supplied them.
func describe(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s: %s (%s): %w", op, pgErr.Detail, pgErr.SQLState(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
