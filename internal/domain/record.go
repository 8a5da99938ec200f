package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ImportCandidate is a parsed, type-coerced record prior to business
// validation. Optional values are nil when absent. TotalCost and CostPerLiter
// are reconciled by the mapper: when one is missing it is derived from the
// other and Liters.
type ImportCandidate struct {
	VehicleID       string
	DriverID        *string
	RefuelDate      time.Time
	OdometerReading int64
	Liters          decimal.Decimal
	TotalCost       *decimal.Decimal
	CostPerLiter    *decimal.Decimal
	FuelStationID   *string
	FuelType        *string
	Region          *string
	FullTank        *bool
	Notes           *string

	// SourceRowIndex is the 1-based data row index (header excluded).
	SourceRowIndex int
	// SourceLine is the 1-based physical line the row started on.
	SourceLine int
}

// Key returns the natural key used for deduplication.
func (c ImportCandidate) Key() NaturalKey {
	return NaturalKey{
		VehicleID:       c.VehicleID,
		RefuelDate:      c.RefuelDate.Format(time.DateOnly),
		OdometerReading: c.OdometerReading,
	}
}

// PricePerLiter returns the unit price, preferring the supplied cost per
// liter and falling back to total cost divided by liters.
func (c ImportCandidate) PricePerLiter() (decimal.Decimal, bool) {
	if c.CostPerLiter != nil {
		return *c.CostPerLiter, true
	}
	if c.TotalCost != nil && c.Liters.IsPositive() {
		return c.TotalCost.DivRound(c.Liters, 6), true
	}
	return decimal.Decimal{}, false
}

// ValidatedRecord is a candidate that passed field and cross-field checks.
// Warnings are non-fatal.
type ValidatedRecord struct {
	ID uuid.UUID
	ImportCandidate
	Warnings []Diagnostic
}

// NaturalKey is the deduplication key (vehicle, date, odometer). RefuelDate is
// kept as "YYYY-MM-DD" so the key is comparable and hashable.
type NaturalKey struct {
	VehicleID       string
	RefuelDate      string
	OdometerReading int64
}

// RefuelState is the part of a refuel event the sequencer needs to compute
// deltas: the persisted most recent refuel or the prior record in the batch.
type RefuelState struct {
	OdometerReading int64
	RefuelDate      time.Time
}

// VehicleDetails are optional facts about a vehicle used by validation and
// anomaly detection. Zero values mean unknown.
type VehicleDetails struct {
	RegistrationDate *time.Time
	FuelType         string
	Region           string
}

// RefuelAnalytics holds derived metrics and anomaly flags persisted next to
// each record. Pointer metrics are nil when undefined.
type RefuelAnalytics struct {
	DistanceSinceLastFill   *int64           `json:"distanceSinceLastFill,omitempty"`
	FuelEfficiencyLPer100Km *decimal.Decimal `json:"fuelEfficiencyLPer100Km,omitempty"`
	KmPerLiter              *decimal.Decimal `json:"kmPerLiter,omitempty"`
	HasNegativeMileage      bool             `json:"hasNegativeMileage"`
	HasHighMileageJump      bool             `json:"hasHighMileageJump"`
	HasHighFuelVolume       bool             `json:"hasHighFuelVolume"`
	HasUnusualFuelPrice     bool             `json:"hasUnusualFuelPrice"`
	PricePerLiter           *decimal.Decimal `json:"pricePerLiter,omitempty"`
	ReferencePricePerLiter  *decimal.Decimal `json:"referencePricePerLiter,omitempty"`
}

// Flagged reports whether any anomaly flag is set.
func (a RefuelAnalytics) Flagged() bool {
	return a.HasNegativeMileage || a.HasHighMileageJump || a.HasHighFuelVolume || a.HasUnusualFuelPrice
}

// StoredRecord is what the loader hands to storage: the record plus its
// analytics.
type StoredRecord struct {
	ValidatedRecord
	Analytics RefuelAnalytics
}
