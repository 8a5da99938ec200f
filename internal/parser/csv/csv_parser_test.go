package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
)

/*
makeCSV builds a CSV document in-memory with the given header and rows.
It uses encoding/csv to ensure proper quoting and escaping.
*/
func makeCSV(delim rune, header []string, rows [][]string) []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	w.Comma = delim
	if header != nil {
		_ = w.Write(header)
	}
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return b.Bytes()
}

func parseKind(t *testing.T, err error) ParseErrorKind {
	t.Helper()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T (%v)", err, err)
	}
	return pe.Kind
}

func Test_Parse_DetectsComma(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte("placa,data,km\nABC1234,2024-01-01,1000\n"), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Delimiter() != ',' {
		t.Fatalf("delimiter got=%q want=','", doc.Delimiter())
	}
	if got := doc.Header().Names(); len(got) != 3 || got[0] != "placa" {
		t.Fatalf("header got=%v", got)
	}
}

func Test_Parse_DetectsSemicolon(t *testing.T) {
	t.Parallel()
	// Decimal commas in the data must not confuse detection.
	doc, err := Parse([]byte("placa;litros;valor\nABC1234;45,5;280,10\n"), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Delimiter() != ';' {
		t.Fatalf("delimiter got=%q want=';'", doc.Delimiter())
	}
	rows, errs, err := doc.ReadAll(context.Background())
	if err != nil || len(errs) != 0 {
		t.Fatalf("ReadAll err=%v rowErrs=%v", err, errs)
	}
	if v, _ := rows[0].Get("litros"); v != "45,5" {
		t.Fatalf("litros got=%q want=45,5", v)
	}
}

func Test_Parse_PrefersWiderHeader(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		hint   rune
		want   rune
		header int
	}{
		{"semicolon wider", "a,b;c;d;e\n1;2;3;4\n", 0, ';', 4},
		{"comma wider", "a;b,c,d\n1,2,3\n", 0, ',', 3},
		{"tie goes to comma", "Data, hora;Placa\n1,2\n", 0, ',', 2},
		{"hint overrides tie", "Data, hora;Placa\n1;2\n", ';', ';', 2},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc, err := Parse([]byte(tc.input), tc.hint)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if doc.Delimiter() != tc.want {
				t.Fatalf("delimiter got=%q want=%q", doc.Delimiter(), tc.want)
			}
			if n := len(doc.Header().Names()); n != tc.header {
				t.Fatalf("header fields got=%d want=%d", n, tc.header)
			}
		})
	}
}

func Test_Parse_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  ParseErrorKind
	}{
		{"empty", "", EmptyInput},
		{"whitespace", " \n\n  \n", EmptyInput},
		{"bom only", "\uFEFF", EmptyInput},
		{"single column", "placa\nABC1234\n", NoDelimiterDetected},
		{"tab delimited", "placa\tdata\n", NoDelimiterDetected},
		{"duplicate header", "placa,placa\n1,2\n", MalformedHeader},
		{"blank header cell", "placa,,data\n1,2,3\n", MalformedHeader},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.input), 0)
			if got := parseKind(t, err); got != tc.want {
				t.Fatalf("kind got=%s want=%s", got, tc.want)
			}
		})
	}
}

func Test_Parse_ExplicitDelimiterAllowsSingleColumn(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte("placa\nABC1234\n"), ',')
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Header().Len() != 1 {
		t.Fatalf("header len got=%d want=1", doc.Header().Len())
	}
}

func Test_Parse_StripsBOMAndTrimsHeader(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte("\uFEFF Placa , Data \nA,B\n"), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Header().Index("Placa") != 0 || doc.Header().Index("Data") != 1 {
		t.Fatalf("header got=%v", doc.Header().Names())
	}
}
