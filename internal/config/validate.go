package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single lint finding. Path is a dotted path into the
// config (e.g. "storage.kind", "options.batch_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownStorageKinds are the backends built into the binary.
var KnownStorageKinds = []string{"postgres", "sqlite", "mssql", "mysql"}

// ValidateJob performs static validation of a Job. It does not mutate j and
// does not touch the network; the mapping file, if any, is read and checked.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(j.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and log lines")
	}

	switch j.Parser.Delimiter {
	case "", ",", ";":
	default:
		add(SeverityError, "parser.delimiter", "delimiter must be \",\" or \";\" (or empty to detect), got %q", j.Parser.Delimiter)
	}

	if j.MappingFile != "" && len(j.Mapping) > 0 {
		add(SeverityWarning, "mapping", "both mapping and mapping_file are set; mapping_file wins")
	}
	if _, err := j.ColumnMapping(); err != nil {
		path := "mapping"
		if j.MappingFile != "" {
			path = "mapping_file"
		}
		add(SeverityError, path, "%v", err)
	}

	issues = append(issues, validateOptions(j.Options)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	for _, o := range j.Server.AllowedOrigins {
		if o == "*" {
			add(SeverityWarning, "server.allowed_origins", "wildcard origin allows any site to submit imports")
		}
	}
	return issues
}

func validateOptions(o ImportOptions) []Issue {
	var issues []Issue
	neg := func(path string, bad bool) {
		if bad {
			issues = append(issues, Issue{Severity: SeverityError, Path: "options." + path, Message: "must not be negative"})
		}
	}
	neg("batch_size", o.BatchSize < 0)
	neg("concurrency", o.Concurrency < 0)
	neg("high_jump_km", o.HighJumpKm < 0)
	neg("high_volume_l", o.HighVolumeL < 0)
	neg("price_deviation_pct", o.PriceDeviationPct < 0)
	neg("max_volume_l", o.MaxVolumeL < 0)
	neg("capacity_volume_factor", o.CapacityVolumeFactor < 0)
	neg("capacity_flag_factor", o.CapacityFlagFactor < 0)
	neg("cost_tolerance_pct", o.CostTolerancePct < 0)
	neg("price_band_min", o.PriceBandMin < 0)
	neg("price_band_max", o.PriceBandMax < 0)
	neg("lookup_timeout", o.LookupTimeout < 0)

	if o.PriceBandMin > 0 && o.PriceBandMax > 0 && o.PriceBandMin >= o.PriceBandMax {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "options.price_band_min",
			Message:  fmt.Sprintf("price_band_min %.2f must be below price_band_max %.2f", o.PriceBandMin, o.PriceBandMax),
		})
	}
	if o.BatchSize > 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "options.batch_size",
			Message:  fmt.Sprintf("batch_size %d is large; a failing batch fails every row in it", o.BatchSize),
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{Severity: SeverityError, Path: "storage.kind", Message: "storage.kind must not be empty"})
	}
	known := false
	for _, k := range KnownStorageKinds {
		if k == s.Kind {
			known = true
		}
	}
	if !known {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.dsn", Message: "storage.dsn must not be empty"})
	}
	if n := s.Options.Int("max_conns", 0); n < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.options.max_conns", Message: "must not be negative"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: "prometheus backend requires pushgateway_url"})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: "metrics.datadog_addr", Message: "empty datadog_addr; the statsd client default will be used"})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	return issues
}
