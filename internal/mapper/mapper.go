// Package mapper turns tokenized CSV rows into typed import candidates.
//
// A Plan is compiled once per job from the document header and the caller's
// column mapping. Column resolution happens at compile time so the per-row
// path does positional lookups only. Coercion failures are returned as
// diagnostics; Map never panics on bad input and never aborts the job.
package mapper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fuelimport/internal/domain"
	"fuelimport/internal/parser/csv"
)

// DefaultCostTolerancePct is the allowed disagreement between total_cost and
// cost_per_liter * liters before a CostMismatch warning is raised.
var DefaultCostTolerancePct = decimal.NewFromInt(1)

// Options tunes the mapper.
type Options struct {
	// CostTolerancePct is a percentage (1 = 1%). Zero means the default.
	CostTolerancePct decimal.Decimal
}

// Result is the outcome of mapping one row. Candidate is nil when Errors is
// non-empty.
type Result struct {
	Candidate *domain.ImportCandidate
	Warnings  []domain.Diagnostic
	Errors    []domain.Diagnostic
}

type fieldPlan struct {
	def    domain.FieldDef
	spec   domain.ColumnSpec
	col    int // -1 when the column is absent from the header
	layout []string
}

// Plan is a compiled mapping bound to one header.
type Plan struct {
	fields    []fieldPlan
	tolerance decimal.Decimal
}

// Compile validates mapping and resolves every configured column against
// header. Columns are matched exactly first, then by a folded form that ignores
// case, accents, spaces, underscores and hyphens.
func Compile(header csv.Header, mapping domain.ColumnMapping, opt Options) (*Plan, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	m := mapping.Clone()

	folded := make(map[string]int, header.Len())
	for i, name := range header.Names() {
		k := foldHeader(name)
		if _, seen := folded[k]; !seen {
			folded[k] = i
		}
	}

	p := &Plan{tolerance: opt.CostTolerancePct}
	if p.tolerance.IsZero() {
		p.tolerance = DefaultCostTolerancePct
	}
	for _, def := range domain.Fields {
		spec, ok := m[def.Name]
		if !ok {
			continue
		}
		col := header.Index(strings.TrimSpace(spec.Column))
		if col < 0 {
			if i, ok := folded[foldHeader(spec.Column)]; ok {
				col = i
			}
		}
		fp := fieldPlan{def: def, spec: spec, col: col}
		if def.Kind == domain.KindDate {
			l, err := dateLayouts(spec.DateFormat)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", def.Name, err)
			}
			fp.layout = l
		}
		p.fields = append(p.fields, fp)
	}
	return p, nil
}

// Unresolved lists the mapped fields whose source column is not in the header.
func (p *Plan) Unresolved() []domain.Field {
	var out []domain.Field
	for _, f := range p.fields {
		if f.col < 0 {
			out = append(out, f.def.Name)
		}
	}
	return out
}

// Map coerces one row into a candidate.
func (p *Plan) Map(row csv.RawRow) Result {
	var res Result
	c := &domain.ImportCandidate{SourceRowIndex: row.Index, SourceLine: row.Line}

	fail := func(f domain.Field, kind domain.DiagnosticKind, raw, detail string) {
		res.Errors = append(res.Errors, domain.Diagnostic{Field: f, Kind: kind, RawValue: raw, Detail: detail})
	}

	for _, fp := range p.fields {
		name := fp.def.Name
		if fp.col < 0 || fp.col >= len(row.Values) {
			if fp.def.Required {
				fail(name, domain.KindMissingRequiredColumn, "", fmt.Sprintf("column %q not found", fp.spec.Column))
			}
			continue
		}
		raw := row.Values[fp.col]
		s := strings.TrimSpace(raw)
		if s == "" {
			if fp.def.Required {
				fail(name, domain.KindMissingRequiredValue, raw, "")
			}
			continue
		}

		switch fp.def.Kind {
		case domain.KindText:
			v := s
			switch name {
			case domain.FieldVehicleID:
				c.VehicleID = v
			case domain.FieldDriverID:
				c.DriverID = &v
			case domain.FieldFuelStationID:
				c.FuelStationID = &v
			case domain.FieldFuelType:
				c.FuelType = &v
			case domain.FieldRegion:
				c.Region = &v
			case domain.FieldNotes:
				c.Notes = &v
			}

		case domain.KindDate:
			t, err := parseDate(s, fp.layout)
			if err != nil {
				fail(name, domain.KindTypeCoercionFailed, raw, err.Error())
				continue
			}
			c.RefuelDate = t

		case domain.KindInteger:
			n, err := parseInteger(s, fp.spec.DecimalSeparator)
			if err != nil {
				fail(name, domain.KindTypeCoercionFailed, raw, err.Error())
				continue
			}
			c.OdometerReading = n

		case domain.KindDecimal:
			d, err := parseDecimal(s, fp.spec.DecimalSeparator)
			if err != nil {
				fail(name, domain.KindTypeCoercionFailed, raw, err.Error())
				continue
			}
			switch name {
			case domain.FieldLiters:
				c.Liters = d
			case domain.FieldTotalCost:
				if d.IsNegative() {
					fail(name, domain.KindTypeCoercionFailed, raw, "must not be negative")
					continue
				}
				c.TotalCost = &d
			case domain.FieldCostPerLiter:
				if d.IsNegative() {
					fail(name, domain.KindTypeCoercionFailed, raw, "must not be negative")
					continue
				}
				c.CostPerLiter = &d
			}

		case domain.KindBool:
			b, ok := parseBool(s)
			if !ok {
				fail(name, domain.KindTypeCoercionFailed, raw, "not a recognised boolean")
				continue
			}
			c.FullTank = &b
		}
	}

	if len(res.Errors) > 0 {
		return res
	}
	if w, ok := reconcile(c, p.tolerance); ok {
		res.Warnings = append(res.Warnings, w)
	}
	res.Candidate = c
	return res
}

var hundred = decimal.NewFromInt(100)

// reconcile derives whichever of total_cost and cost_per_liter is missing and
// reports a CostMismatch warning when both are present and disagree by more
// than tolerancePct percent. Derivation needs positive liters.
func reconcile(c *domain.ImportCandidate, tolerancePct decimal.Decimal) (domain.Diagnostic, bool) {
	if !c.Liters.IsPositive() {
		return domain.Diagnostic{}, false
	}
	switch {
	case c.TotalCost != nil && c.CostPerLiter == nil:
		cpl := c.TotalCost.DivRound(c.Liters, 4)
		c.CostPerLiter = &cpl
	case c.TotalCost == nil && c.CostPerLiter != nil:
		total := c.CostPerLiter.Mul(c.Liters).Round(2)
		c.TotalCost = &total
	case c.TotalCost != nil && c.CostPerLiter != nil:
		expected := c.CostPerLiter.Mul(c.Liters)
		base := decimal.Max(c.TotalCost.Abs(), expected.Abs())
		if base.IsZero() {
			return domain.Diagnostic{}, false
		}
		dev := c.TotalCost.Sub(expected).Abs().Mul(hundred).Div(base)
		if dev.GreaterThan(tolerancePct) {
			return domain.Diagnostic{
				Field:    domain.FieldTotalCost,
				Kind:     domain.KindCostMismatch,
				RawValue: c.TotalCost.String(),
				Detail: fmt.Sprintf("total_cost %s differs from cost_per_liter*liters %s by %s%%",
					c.TotalCost.String(), expected.Round(2).String(), dev.Round(2).String()),
			}, true
		}
	}
	return domain.Diagnostic{}, false
}
