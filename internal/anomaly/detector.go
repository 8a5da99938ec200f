// Package anomaly derives fuel-economy metrics for a record and flags values
// that are physically or commercially implausible. It never rejects a record.
package anomaly

import (
	"context"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
	"fuelimport/internal/lookup"
)

// Defaults for Options.
var (
	DefaultHighJumpKm         int64 = 2000
	DefaultHighVolumeL              = decimal.NewFromInt(120)
	DefaultCapacityFlagFactor       = decimal.RequireFromString("1.1")
	DefaultPriceDeviationPct        = decimal.NewFromInt(25)
	DefaultPriceBandMin             = decimal.RequireFromString("0.80")
	DefaultPriceBandMax             = decimal.RequireFromString("2.50")
)

// Options holds the detection thresholds. Zero values select the defaults.
type Options struct {
	HighJumpKm         int64
	HighVolumeL        decimal.Decimal
	CapacityFlagFactor decimal.Decimal
	PriceDeviationPct  decimal.Decimal
	PriceBandMin       decimal.Decimal
	PriceBandMax       decimal.Decimal
}

func (o Options) withDefaults() Options {
	if o.HighJumpKm <= 0 {
		o.HighJumpKm = DefaultHighJumpKm
	}
	if !o.HighVolumeL.IsPositive() {
		o.HighVolumeL = DefaultHighVolumeL
	}
	if !o.CapacityFlagFactor.IsPositive() {
		o.CapacityFlagFactor = DefaultCapacityFlagFactor
	}
	if !o.PriceDeviationPct.IsPositive() {
		o.PriceDeviationPct = DefaultPriceDeviationPct
	}
	if !o.PriceBandMin.IsPositive() {
		o.PriceBandMin = DefaultPriceBandMin
	}
	if !o.PriceBandMax.IsPositive() {
		o.PriceBandMax = DefaultPriceBandMax
	}
	return o
}

const metricPlaces = 4

var hundred = decimal.NewFromInt(100)

// Detector is safe for concurrent use.
type Detector struct {
	guard *lookup.Guard
	opt   Options
}

// New returns a detector. A nil guard treats every lookup as unknown.
func New(g *lookup.Guard, opt Options) *Detector {
	if g == nil {
		g = lookup.NewGuard(lookup.Collaborators{}, 0, nil)
	}
	return &Detector{guard: g, opt: opt.withDefaults()}
}

// Detect computes analytics for rec given its predecessor (nil when none).
func (d *Detector) Detect(ctx context.Context, rec domain.ValidatedRecord, pred *domain.RefuelState) domain.RefuelAnalytics {
	var a domain.RefuelAnalytics

	if pred != nil {
		dist := rec.OdometerReading - pred.OdometerReading
		a.DistanceSinceLastFill = &dist
		a.HasNegativeMileage = dist < 0
		a.HasHighMileageJump = dist > d.opt.HighJumpKm
		if dist > 0 && rec.Liters.IsPositive() {
			km := decimal.NewFromInt(dist)
			kmpl := km.DivRound(rec.Liters, metricPlaces)
			lp100 := rec.Liters.Mul(hundred).DivRound(km, metricPlaces)
			a.KmPerLiter = &kmpl
			a.FuelEfficiencyLPer100Km = &lp100
		}
	}

	if capL, ok := d.guard.Capacity(ctx, rec.VehicleID); ok && capL.IsPositive() {
		a.HasHighFuelVolume = rec.Liters.GreaterThan(capL.Mul(d.opt.CapacityFlagFactor))
	} else {
		a.HasHighFuelVolume = rec.Liters.GreaterThan(d.opt.HighVolumeL)
	}

	d.checkPrice(ctx, rec, &a)
	return a
}

func (d *Detector) checkPrice(ctx context.Context, rec domain.ValidatedRecord, a *domain.RefuelAnalytics) {
	ppl, ok := rec.PricePerLiter()
	if !ok {
		return
	}
	ppl = ppl.Round(metricPlaces)
	a.PricePerLiter = &ppl

	fuelType, region := deref(rec.FuelType), deref(rec.Region)
	if fuelType == "" || region == "" {
		if det, ok := d.guard.Details(ctx, rec.VehicleID); ok {
			if fuelType == "" {
				fuelType = det.FuelType
			}
			if region == "" {
				region = det.Region
			}
		}
	}

	ref, ok := d.guard.FuelPrice(ctx, fuelType, rec.RefuelDate.Year(), rec.RefuelDate.Month(), region)
	if ok && ref.IsPositive() {
		a.ReferencePricePerLiter = &ref
		dev := ppl.Sub(ref).Abs().Mul(hundred).Div(ref)
		a.HasUnusualFuelPrice = dev.GreaterThan(d.opt.PriceDeviationPct)
		return
	}
	a.HasUnusualFuelPrice = ppl.LessThan(d.opt.PriceBandMin) || ppl.GreaterThan(d.opt.PriceBandMax)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
