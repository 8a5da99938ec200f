// Package domain holds the canonical fuel-record model shared by every stage
// of the import pipeline: the column mapping supplied by the caller, the
// intermediate candidates, the validated records that reach storage and the
// per-row diagnostics returned to the caller.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a canonical field name onto which source columns are mapped.
type Field string

const (
	FieldVehicleID       Field = "vehicle_id"
	FieldDriverID        Field = "driver_id"
	FieldRefuelDate      Field = "refuel_date"
	FieldOdometerReading Field = "odometer_reading"
	FieldLiters          Field = "liters"
	FieldTotalCost       Field = "total_cost"
	FieldFuelStationID   Field = "fuel_station_id"
	FieldCostPerLiter    Field = "cost_per_liter"
	FieldFuelType        Field = "fuel_type"
	FieldRegion          Field = "region"
	FieldFullTank        Field = "full_tank"
	FieldNotes           Field = "notes"
)

// ValueKind is the type a canonical field is coerced into.
type ValueKind int

const (
	KindText ValueKind = iota
	KindDate
	KindInteger
	KindDecimal
	KindBool
)

// FieldDef describes one canonical field.
type FieldDef struct {
	Name     Field
	Kind     ValueKind
	Required bool
}

// Fields lists every canonical field in a stable order. Required fields come
// first so that diagnostics read naturally.
var Fields = []FieldDef{
	{Name: FieldVehicleID, Kind: KindText, Required: true},
	{Name: FieldRefuelDate, Kind: KindDate, Required: true},
	{Name: FieldOdometerReading, Kind: KindInteger, Required: true},
	{Name: FieldLiters, Kind: KindDecimal, Required: true},
	{Name: FieldDriverID, Kind: KindText},
	{Name: FieldTotalCost, Kind: KindDecimal},
	{Name: FieldCostPerLiter, Kind: KindDecimal},
	{Name: FieldFuelStationID, Kind: KindText},
	{Name: FieldFuelType, Kind: KindText},
	{Name: FieldRegion, Kind: KindText},
	{Name: FieldFullTank, Kind: KindBool},
	{Name: FieldNotes, Kind: KindText},
}

// LookupField returns the definition for name.
func LookupField(name Field) (FieldDef, bool) {
	for _, f := range Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// ColumnSpec binds a canonical field to a source column plus an optional
// transform.
type ColumnSpec struct {
	// Column is the source header name.
	Column string `yaml:"column" json:"column"`

	// DateFormat overrides the default date parsing. Accepts Go layouts
	// ("02/01/2006") or token layouts ("DD/MM/YYYY").
	DateFormat string `yaml:"date_format,omitempty" json:"date_format,omitempty"`

	// DecimalSeparator forces "." or "," as the decimal separator; the other
	// one is then treated as a thousands separator.
	DecimalSeparator string `yaml:"decimal_separator,omitempty" json:"decimal_separator,omitempty"`
}

// ColumnMapping maps canonical fields to source columns. It is supplied once
// per import job and must not be mutated while the job runs; use Clone when a
// private copy is needed.
type ColumnMapping map[Field]ColumnSpec

// Clone returns a deep copy of m.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate checks that every key is a known canonical field, that every
// configured column is non-empty and that required fields are present.
func (m ColumnMapping) Validate() error {
	var problems []string
	for field, spec := range m {
		if _, ok := LookupField(field); !ok {
			problems = append(problems, fmt.Sprintf("unknown field %q", field))
			continue
		}
		if strings.TrimSpace(spec.Column) == "" {
			problems = append(problems, fmt.Sprintf("field %q has an empty column", field))
		}
		switch spec.DecimalSeparator {
		case "", ".", ",":
		default:
			problems = append(problems, fmt.Sprintf("field %q: decimal_separator must be \".\" or \",\"", field))
		}
	}
	for _, f := range Fields {
		if !f.Required {
			continue
		}
		if _, ok := m[f.Name]; !ok {
			problems = append(problems, fmt.Sprintf("required field %q is not mapped", f.Name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("column mapping: %s", strings.Join(problems, "; "))
}
