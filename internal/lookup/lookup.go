// Package lookup defines the collaborators the import pipeline consults for
// facts it does not own (vehicle capacity, last persisted refuel, reference
// fuel prices, entity existence) and a per-job Guard that bounds and memoizes
// those calls.
package lookup

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
)

// VehicleLookup answers vehicle questions. ok=false means unknown.
type VehicleLookup interface {
	GetCapacity(ctx context.Context, vehicleID string) (liters decimal.Decimal, ok bool, err error)
	// GetMostRecentRefuel returns nil when the vehicle has no persisted refuel.
	GetMostRecentRefuel(ctx context.Context, vehicleID string) (*domain.RefuelState, error)
}

// VehicleDetailsLookup is optional. It supplies registration date, default
// fuel type and region.
type VehicleDetailsLookup interface {
	GetDetails(ctx context.Context, vehicleID string) (domain.VehicleDetails, bool, error)
}

// ReferenceLookup returns the reference price per liter for a fuel type in a
// given month and region.
type ReferenceLookup interface {
	GetFuelPrice(ctx context.Context, fuelType string, year int, month time.Month, region string) (decimal.Decimal, bool, error)
}

// EntityExists confirms that referenced entities exist.
type EntityExists interface {
	Vehicle(ctx context.Context, id string) (bool, error)
	Driver(ctx context.Context, id string) (bool, error)
	FuelStation(ctx context.Context, id string) (bool, error)
}

// Collaborators bundles the lookups injected into one job. Nil members are
// treated as "unknown" (capacity, details, prices, most recent refuel) or as
// "exists" (entities).
type Collaborators struct {
	Vehicles VehicleLookup
	Details  VehicleDetailsLookup
	Prices   ReferenceLookup
	Entities EntityExists
}

// EntityKind names a referenced entity.
type EntityKind string

const (
	EntityVehicle     EntityKind = "vehicle"
	EntityDriver      EntityKind = "driver"
	EntityFuelStation EntityKind = "fuel_station"
)
