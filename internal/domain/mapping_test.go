package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestColumnMapping_Validate(t *testing.T) {
	t.Parallel()

	ok := ColumnMapping{
		FieldVehicleID:       {Column: "Placa"},
		FieldRefuelDate:      {Column: "Data", DateFormat: "DD/MM/YYYY"},
		FieldOdometerReading: {Column: "Km"},
		FieldLiters:          {Column: "Litros", DecimalSeparator: ","},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid mapping rejected: %v", err)
	}

	bad := ok.Clone()
	delete(bad, FieldLiters)
	bad["colour"] = ColumnSpec{Column: "x"}
	bad[FieldDriverID] = ColumnSpec{Column: " "}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{`unknown field "colour"`, `"driver_id" has an empty column`, `required field "liters"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if _, still := ok[FieldLiters]; !still {
		t.Fatal("Clone must not share storage with the original")
	}
}

func TestImportCandidate_PricePerLiter(t *testing.T) {
	t.Parallel()

	total := decimal.RequireFromString("80")
	c := ImportCandidate{Liters: decimal.RequireFromString("40"), TotalCost: &total}
	p, ok := c.PricePerLiter()
	if !ok || !p.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("price = %v, %v; want 2, true", p, ok)
	}

	cpl := decimal.RequireFromString("1.75")
	c.CostPerLiter = &cpl
	if p, _ := c.PricePerLiter(); !p.Equal(cpl) {
		t.Fatalf("supplied cost per liter must win, got %v", p)
	}

	if _, ok := (ImportCandidate{}).PricePerLiter(); ok {
		t.Fatal("no price expected without cost data")
	}
}

func TestNaturalKey_DateOnly(t *testing.T) {
	t.Parallel()

	c := ImportCandidate{VehicleID: "V1", RefuelDate: time.Date(2024, 2, 1, 15, 30, 0, 0, time.UTC), OdometerReading: 9500}
	k := c.Key()
	if k.RefuelDate != "2024-02-01" || k.VehicleID != "V1" || k.OdometerReading != 9500 {
		t.Fatalf("unexpected key %+v", k)
	}
}

func TestImportResult_SortAndAccount(t *testing.T) {
	t.Parallel()

	r := ImportResult{
		TotalRows:     5,
		ImportedCount: 2,
		SkippedCount:  1,
		FailedRows: []RowDiagnostics{
			{RowIndex: 4, Reasons: []Diagnostic{{Kind: KindStoreError}}},
			{RowIndex: 2, Reasons: []Diagnostic{{Kind: KindColumnCountMismatch}}},
		},
	}
	r.SortDiagnostics()
	if r.FailedRows[0].RowIndex != 2 || r.FailedRows[1].RowIndex != 4 {
		t.Fatalf("rows not sorted: %+v", r.FailedRows)
	}
	if r.Accounted() != r.TotalRows {
		t.Fatalf("accounted %d, total %d", r.Accounted(), r.TotalRows)
	}
}
