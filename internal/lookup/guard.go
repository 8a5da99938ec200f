package lookup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"fuelimport/internal/domain"
)

// ErrTimeout is returned (wrapped) when a lookup exceeds the guard timeout.
var ErrTimeout = errors.New("lookup: timeout")

// DefaultTimeout bounds a single collaborator call.
const DefaultTimeout = 2 * time.Second

// Guard wraps the collaborators of one import job. Every call runs under a
// timeout and successful answers are memoized for the job's lifetime, so a
// vehicle appearing on many rows is looked up once. A Guard must not be shared
// between jobs.
type Guard struct {
	c       Collaborators
	timeout time.Duration
	logger  *log.Logger

	capacity memo[optDecimal]
	recent   memo[*domain.RefuelState]
	details  memo[optDetails]
	prices   memo[optDecimal]
	exists   memo[bool]

	timeouts atomic.Int64
	failures atomic.Int64
}

type optDecimal struct {
	v  decimal.Decimal
	ok bool
}

type optDetails struct {
	v  domain.VehicleDetails
	ok bool
}

// NewGuard returns a guard. timeout <= 0 selects DefaultTimeout; a nil logger
// selects log.Default().
func NewGuard(c Collaborators, timeout time.Duration, logger *log.Logger) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{c: c, timeout: timeout, logger: logger}
}

// Stats reports how many calls timed out and how many failed otherwise.
func (g *Guard) Stats() (timeouts, failures int64) {
	return g.timeouts.Load(), g.failures.Load()
}

// call runs fn under the guard timeout and classifies its error.
func (g *Guard) call(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	err := fn(cctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		g.timeouts.Add(1)
		return fmt.Errorf("%w after %s: %v", ErrTimeout, g.timeout, err)
	}
	g.failures.Add(1)
	return err
}

// degrade logs a failed lookup and swallows the error so the memo keeps the
// unknown answer. Errors caused by the job's own cancellation are returned
// and not cached.
func (g *Guard) degrade(ctx context.Context, err error, what string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	g.logger.Printf("lookup: warning: %s: %v", what, err)
	return nil
}

// Capacity returns the vehicle's tank capacity. Timeouts and errors degrade to
// unknown, are logged once and stay unknown for the rest of the job.
func (g *Guard) Capacity(ctx context.Context, vehicleID string) (decimal.Decimal, bool) {
	if g.c.Vehicles == nil {
		return decimal.Decimal{}, false
	}
	v, err := g.capacity.get(vehicleID, func() (optDecimal, error) {
		var out optDecimal
		err := g.call(ctx, func(ctx context.Context) error {
			var err error
			out.v, out.ok, err = g.c.Vehicles.GetCapacity(ctx, vehicleID)
			return err
		})
		if err != nil {
			out = optDecimal{}
		}
		return out, g.degrade(ctx, err, "capacity vehicle="+vehicleID)
	})
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v.v, v.ok
}

// MostRecentRefuel returns the vehicle's last persisted refuel, or nil when
// there is none or it could not be determined.
func (g *Guard) MostRecentRefuel(ctx context.Context, vehicleID string) *domain.RefuelState {
	if g.c.Vehicles == nil {
		return nil
	}
	v, err := g.recent.get(vehicleID, func() (*domain.RefuelState, error) {
		var out *domain.RefuelState
		err := g.call(ctx, func(ctx context.Context) error {
			var err error
			out, err = g.c.Vehicles.GetMostRecentRefuel(ctx, vehicleID)
			return err
		})
		if err != nil {
			out = nil
		}
		return out, g.degrade(ctx, err, "most recent refuel vehicle="+vehicleID)
	})
	if err != nil {
		return nil
	}
	return v
}

// Details returns optional vehicle details.
func (g *Guard) Details(ctx context.Context, vehicleID string) (domain.VehicleDetails, bool) {
	if g.c.Details == nil {
		return domain.VehicleDetails{}, false
	}
	v, err := g.details.get(vehicleID, func() (optDetails, error) {
		var out optDetails
		err := g.call(ctx, func(ctx context.Context) error {
			var err error
			out.v, out.ok, err = g.c.Details.GetDetails(ctx, vehicleID)
			return err
		})
		if err != nil {
			out = optDetails{}
		}
		return out, g.degrade(ctx, err, "details vehicle="+vehicleID)
	})
	if err != nil {
		return domain.VehicleDetails{}, false
	}
	return v.v, v.ok
}

// FuelPrice returns the reference price per liter, or ok=false when unknown.
func (g *Guard) FuelPrice(ctx context.Context, fuelType string, year int, month time.Month, region string) (decimal.Decimal, bool) {
	if g.c.Prices == nil || fuelType == "" {
		return decimal.Decimal{}, false
	}
	key := fmt.Sprintf("%s|%04d-%02d|%s", fuelType, year, int(month), region)
	v, err := g.prices.get(key, func() (optDecimal, error) {
		var out optDecimal
		err := g.call(ctx, func(ctx context.Context) error {
			var err error
			out.v, out.ok, err = g.c.Prices.GetFuelPrice(ctx, fuelType, year, month, region)
			return err
		})
		if err != nil {
			out = optDecimal{}
		}
		return out, g.degrade(ctx, err, "fuel price key="+key)
	})
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v.v, v.ok
}

// Exists confirms an entity. Unlike the other lookups, failures are returned
// to the caller: an unconfirmed reference cannot be imported.
func (g *Guard) Exists(ctx context.Context, kind EntityKind, id string) (bool, error) {
	if g.c.Entities == nil {
		return true, nil
	}
	var fn func(context.Context, string) (bool, error)
	switch kind {
	case EntityVehicle:
		fn = g.c.Entities.Vehicle
	case EntityDriver:
		fn = g.c.Entities.Driver
	case EntityFuelStation:
		fn = g.c.Entities.FuelStation
	default:
		return false, fmt.Errorf("lookup: unknown entity kind %q", kind)
	}
	return g.exists.get(string(kind)+"|"+id, func() (bool, error) {
		var ok bool
		err := g.call(ctx, func(ctx context.Context) error {
			var err error
			ok, err = fn(ctx, id)
			return err
		})
		return ok, err
	})
}

// memo caches answers by key; loads that return an error are not cached.
// Concurrent misses for the same key share one call.
type memo[V any] struct {
	mu sync.Mutex
	m  map[string]V
	sf singleflight.Group
}

func (c *memo[V]) get(key string, load func() (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.m[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	res, err, _ := c.sf.Do(key, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.m[key]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()
		v, err := load()
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.m == nil {
			c.m = make(map[string]V)
		}
		c.m[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
