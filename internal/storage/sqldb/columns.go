package sqldb

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
)

// RecordColumns is the insert column order for fuel_records, shared by
// every backend.
var RecordColumns = []string{
	"id",
	"vehicle_id",
	"driver_id",
	"refuel_date",
	"odometer_reading",
	"liters",
	"total_cost",
	"cost_per_liter",
	"fuel_station_id",
	"fuel_type",
	"region",
	"full_tank",
	"notes",
	"source_row",
	"distance_since_last_fill",
	"fuel_efficiency_l_per_100km",
	"km_per_liter",
	"price_per_liter",
	"reference_price_per_liter",
	"has_negative_mileage",
	"has_high_mileage_jump",
	"has_high_fuel_volume",
	"has_unusual_fuel_price",
}

// recordArgs returns the bind values for r in RecordColumns order. Decimals
// are bound as strings so every driver stores them exactly.
func recordArgs(r domain.StoredRecord) []any {
	a := r.Analytics
	return []any{
		r.ID.String(),
		r.VehicleID,
		nullString(r.DriverID),
		r.RefuelDate.Format(time.DateOnly),
		r.OdometerReading,
		r.Liters.String(),
		nullDecimal(r.TotalCost),
		nullDecimal(r.CostPerLiter),
		nullString(r.FuelStationID),
		nullString(r.FuelType),
		nullString(r.Region),
		nullBool(r.FullTank),
		nullString(r.Notes),
		r.SourceRowIndex,
		nullInt(a.DistanceSinceLastFill),
		nullDecimal(a.FuelEfficiencyLPer100Km),
		nullDecimal(a.KmPerLiter),
		nullDecimal(a.PricePerLiter),
		nullDecimal(a.ReferencePricePerLiter),
		a.HasNegativeMileage,
		a.HasHighMileageJump,
		a.HasHighFuelVolume,
		a.HasUnusualFuelPrice,
	}
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullDecimal(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// dateString normalizes a scanned DATE/TEXT value to "YYYY-MM-DD".
func dateString(v any) (string, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.DateOnly), true
	case string:
		if len(t) >= 10 {
			return t[:10], true
		}
	case []byte:
		if len(t) >= 10 {
			return string(t[:10]), true
		}
	}
	return "", false
}
