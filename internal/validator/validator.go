// Package validator applies field and cross-field business rules to mapped
// candidates and detects in-batch duplicates.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
	"fuelimport/internal/lookup"
)

var (
	DefaultMaxVolumeL           = decimal.NewFromInt(500)
	DefaultCapacityVolumeFactor = decimal.RequireFromString("1.5")
)

// Options tunes the rules. Zero values select the defaults.
type Options struct {
	// MaxVolumeL bounds liters when the vehicle capacity is unknown.
	MaxVolumeL decimal.Decimal
	// CapacityVolumeFactor bounds liters at capacity * factor when known.
	CapacityVolumeFactor decimal.Decimal
	// Now is the clock used for the future-date rule.
	Now func() time.Time
	// Location defines "today". Defaults to UTC.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if !o.MaxVolumeL.IsPositive() {
		o.MaxVolumeL = DefaultMaxVolumeL
	}
	if !o.CapacityVolumeFactor.IsPositive() {
		o.CapacityVolumeFactor = DefaultCapacityVolumeFactor
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Validator is safe for concurrent use; the guard it wraps is per job.
type Validator struct {
	guard *lookup.Guard
	opt   Options
}

// New returns a validator. A nil guard answers every lookup as unknown and
// confirms every reference.
func New(g *lookup.Guard, opt Options) *Validator {
	if g == nil {
		g = lookup.NewGuard(lookup.Collaborators{}, 0, nil)
	}
	return &Validator{guard: g, opt: opt.withDefaults()}
}

// Validate checks c. On success the record gets a fresh ID and the returned
// diagnostics are empty; otherwise every violated rule is reported.
func (v *Validator) Validate(ctx context.Context, c domain.ImportCandidate) (domain.ValidatedRecord, []domain.Diagnostic) {
	var errs []domain.Diagnostic
	add := func(f domain.Field, kind domain.DiagnosticKind, raw, detail string) {
		errs = append(errs, domain.Diagnostic{Field: f, Kind: kind, RawValue: raw, Detail: detail})
	}

	if c.OdometerReading < 0 {
		add(domain.FieldOdometerReading, domain.KindNegativeOdometer, fmt.Sprint(c.OdometerReading), "")
	}

	if !c.Liters.IsPositive() {
		add(domain.FieldLiters, domain.KindImplausibleVolume, c.Liters.String(), "must be greater than zero")
	} else if capL, ok := v.guard.Capacity(ctx, c.VehicleID); ok && capL.IsPositive() {
		if limit := capL.Mul(v.opt.CapacityVolumeFactor); c.Liters.GreaterThan(limit) {
			add(domain.FieldLiters, domain.KindImplausibleVolume, c.Liters.String(),
				fmt.Sprintf("exceeds %s L (capacity %s L)", limit.String(), capL.String()))
		}
	} else if c.Liters.GreaterThan(v.opt.MaxVolumeL) {
		add(domain.FieldLiters, domain.KindImplausibleVolume, c.Liters.String(),
			fmt.Sprintf("exceeds %s L", v.opt.MaxVolumeL.String()))
	}

	date := dateOnly(c.RefuelDate)
	if today := dateOnly(v.opt.Now().In(v.opt.Location)); date.After(today) {
		add(domain.FieldRefuelDate, domain.KindFutureDate, c.RefuelDate.Format(time.DateOnly), "")
	}
	if d, ok := v.guard.Details(ctx, c.VehicleID); ok && d.RegistrationDate != nil {
		if reg := dateOnly(*d.RegistrationDate); date.Before(reg) {
			add(domain.FieldRefuelDate, domain.KindBeforeRegistration, c.RefuelDate.Format(time.DateOnly),
				"vehicle registered on "+reg.Format(time.DateOnly))
		}
	}

	refs := []struct {
		field domain.Field
		kind  lookup.EntityKind
		id    *string
	}{
		{domain.FieldVehicleID, lookup.EntityVehicle, &c.VehicleID},
		{domain.FieldDriverID, lookup.EntityDriver, c.DriverID},
		{domain.FieldFuelStationID, lookup.EntityFuelStation, c.FuelStationID},
	}
	for _, r := range refs {
		if r.id == nil || *r.id == "" {
			continue
		}
		ok, err := v.guard.Exists(ctx, r.kind, *r.id)
		switch {
		case err != nil:
			add(r.field, domain.KindReferenceLookupFailed, *r.id, err.Error())
		case !ok:
			add(r.field, domain.KindUnknownReference, *r.id, "")
		}
	}

	if len(errs) > 0 {
		return domain.ValidatedRecord{}, errs
	}
	return domain.ValidatedRecord{ID: uuid.New(), ImportCandidate: c}, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
