package lookup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
)

// Memory is an in-process implementation of every collaborator. It backs
// dry runs and tests. The zero value knows nothing; unknown vehicles do not
// exist unless AllowUnknown is set.
type Memory struct {
	mu sync.RWMutex

	Capacities map[string]decimal.Decimal
	Recent     map[string]domain.RefuelState
	Vehicles   map[string]domain.VehicleDetails
	Drivers    map[string]bool
	Stations   map[string]bool
	// Prices is keyed by PriceKey.
	Prices map[string]decimal.Decimal

	// AllowUnknown makes every existence check succeed.
	AllowUnknown bool
	// Delay is applied to every call; used to exercise timeouts.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error
}

// PriceKey builds the Prices map key.
func PriceKey(fuelType string, year int, month time.Month, region string) string {
	return fmt.Sprintf("%s|%04d-%02d|%s", fuelType, year, int(month), region)
}

// Collaborators exposes m through every collaborator slot.
func (m *Memory) Collaborators() Collaborators {
	return Collaborators{Vehicles: m, Details: m, Prices: m, Entities: m}
}

func (m *Memory) wait(ctx context.Context) error {
	if m.Err != nil {
		return m.Err
	}
	if m.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(m.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) GetCapacity(ctx context.Context, vehicleID string) (decimal.Decimal, bool, error) {
	if err := m.wait(ctx); err != nil {
		return decimal.Decimal{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.Capacities[vehicleID]
	return v, ok, nil
}

func (m *Memory) GetMostRecentRefuel(ctx context.Context, vehicleID string) (*domain.RefuelState, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.Recent[vehicleID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) GetDetails(ctx context.Context, vehicleID string) (domain.VehicleDetails, bool, error) {
	if err := m.wait(ctx); err != nil {
		return domain.VehicleDetails{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.Vehicles[vehicleID]
	return d, ok, nil
}

func (m *Memory) GetFuelPrice(ctx context.Context, fuelType string, year int, month time.Month, region string) (decimal.Decimal, bool, error) {
	if err := m.wait(ctx); err != nil {
		return decimal.Decimal{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.Prices[PriceKey(fuelType, year, month, region)]
	if !ok && region != "" {
		p, ok = m.Prices[PriceKey(fuelType, year, month, "")]
	}
	return p, ok, nil
}

func (m *Memory) Vehicle(ctx context.Context, id string) (bool, error) {
	if err := m.wait(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Vehicles[id]
	return ok || m.AllowUnknown, nil
}

func (m *Memory) Driver(ctx context.Context, id string) (bool, error) {
	if err := m.wait(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Drivers[id] || m.AllowUnknown, nil
}

func (m *Memory) FuelStation(ctx context.Context, id string) (bool, error) {
	if err := m.wait(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Stations[id] || m.AllowUnknown, nil
}

// RecordRefuel updates the most recent refuel for a vehicle if s is newer.
// The pipeline's dry-run mode uses it to emulate persistence.
func (m *Memory) RecordRefuel(vehicleID string, s domain.RefuelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Recent == nil {
		m.Recent = make(map[string]domain.RefuelState)
	}
	if cur, ok := m.Recent[vehicleID]; ok && cur.RefuelDate.After(s.RefuelDate) {
		return
	}
	m.Recent[vehicleID] = s
}
