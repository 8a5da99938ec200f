package pipeline

import (
	"log"
	"time"

	"github.com/shopspring/decimal"

	"fuelimport/internal/anomaly"
	"fuelimport/internal/config"
	"fuelimport/internal/mapper"
	"fuelimport/internal/storage"
	"fuelimport/internal/validator"
)

// Options are the per-job knobs of ImportCSV. Zero values select each
// stage's defaults.
type Options struct {
	// Job labels log lines and metrics.
	Job string
	// Delimiter is ',' or ';'; zero means detect from the header line.
	Delimiter rune

	BatchSize   int
	Concurrency int

	HighJumpKm           int64
	HighVolumeL          decimal.Decimal
	PriceDeviationPct    decimal.Decimal
	MaxVolumeL           decimal.Decimal
	CapacityVolumeFactor decimal.Decimal
	CapacityFlagFactor   decimal.Decimal
	CostTolerancePct     decimal.Decimal
	PriceBandMin         decimal.Decimal
	PriceBandMax         decimal.Decimal

	// LookupTimeout bounds each collaborator call.
	LookupTimeout time.Duration

	// DryRun runs every stage except the loader.
	DryRun bool

	// Now and Location define "today" for the future-date rule.
	Now      func() time.Time
	Location *time.Location
}

// OptionsFromConfig converts the job file's options. Floats are converted
// through their shortest decimal representation.
func OptionsFromConfig(j config.Job) Options {
	o := j.Options
	dec := func(f float64) decimal.Decimal {
		if f <= 0 {
			return decimal.Decimal{}
		}
		return decimal.NewFromFloat(f)
	}
	var delim rune
	if d := j.Parser.Delimiter; d != "" {
		delim = []rune(d)[0]
	}
	return Options{
		Job:                  j.Job,
		Delimiter:            delim,
		BatchSize:            o.BatchSize,
		Concurrency:          o.Concurrency,
		HighJumpKm:           o.HighJumpKm,
		HighVolumeL:          dec(o.HighVolumeL),
		PriceDeviationPct:    dec(o.PriceDeviationPct),
		MaxVolumeL:           dec(o.MaxVolumeL),
		CapacityVolumeFactor: dec(o.CapacityVolumeFactor),
		CapacityFlagFactor:   dec(o.CapacityFlagFactor),
		CostTolerancePct:     dec(o.CostTolerancePct),
		PriceBandMin:         dec(o.PriceBandMin),
		PriceBandMax:         dec(o.PriceBandMax),
		LookupTimeout:        o.LookupTimeout,
	}
}

func (o Options) mapperOptions() mapper.Options {
	return mapper.Options{CostTolerancePct: o.CostTolerancePct}
}

func (o Options) validatorOptions() validator.Options {
	return validator.Options{
		MaxVolumeL:           o.MaxVolumeL,
		CapacityVolumeFactor: o.CapacityVolumeFactor,
		Now:                  o.Now,
		Location:             o.Location,
	}
}

func (o Options) anomalyOptions() anomaly.Options {
	return anomaly.Options{
		HighJumpKm:         o.HighJumpKm,
		HighVolumeL:        o.HighVolumeL,
		CapacityFlagFactor: o.CapacityFlagFactor,
		PriceDeviationPct:  o.PriceDeviationPct,
		PriceBandMin:       o.PriceBandMin,
		PriceBandMax:       o.PriceBandMax,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for progress and summary lines.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithVerbose enables one progress line per loader batch.
func WithVerbose(v bool) Option {
	return func(p *Pipeline) { p.verbose = v }
}

// WithOnBatch registers a callback invoked after every loader batch.
func WithOnBatch(fn func(storage.BatchStat)) Option {
	return func(p *Pipeline) { p.onBatch = fn }
}
