package mapper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// defaultLayouts are tried in order when a field has no date_format. Only the
// date part of timestamp forms is kept.
var defaultLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

var tokenReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// dateLayouts resolves a configured format. Formats containing Y or D tokens
// ("DD/MM/YYYY") are converted to Go layouts; anything else is taken as a Go
// layout verbatim.
func dateLayouts(format string) ([]string, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		return defaultLayouts, nil
	}
	layout := format
	if strings.ContainsAny(format, "YD") {
		layout = tokenReplacer.Replace(format)
	}
	if !strings.Contains(layout, "2006") && !strings.Contains(layout, "06") {
		return nil, fmt.Errorf("date format %q has no year component", format)
	}
	return []string{layout}, nil
}

func parseDate(s string, layouts []string) (time.Time, error) {
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

var currencyAffixes = []string{"R$", "EUR", "€", "$"}

// cleanNumber strips grouping whitespace, apostrophes and currency markers.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	for _, c := range currencyAffixes {
		if len(s) >= len(c) && strings.EqualFold(s[:len(c)], c) {
			s = strings.TrimSpace(s[len(c):])
		}
		if len(s) >= len(c) && strings.EqualFold(s[len(s)-len(c):], c) {
			s = strings.TrimSpace(s[:len(s)-len(c)])
		}
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)
}

var errNotNumber = errors.New("not a number")

// normalizeNumber rewrites s so that '.' is the only decimal separator and
// thousands separators are gone. sep forces the decimal separator. When sep is
// empty and both separators appear, the last one is decimal; a separator that
// appears more than once is a thousands separator. When preferThousands is
// set, a lone separator followed by exactly three digit groups is also read as
// thousands ("12.345" odometer readings).
func normalizeNumber(s, sep string, preferThousands bool) (string, error) {
	s = cleanNumber(s)
	if s == "" {
		return "", errNotNumber
	}
	dec, thou := byte(0), byte(0)
	switch sep {
	case ".":
		dec, thou = '.', ','
	case ",":
		dec, thou = ',', '.'
	default:
		lastDot, lastComma := strings.LastIndexByte(s, '.'), strings.LastIndexByte(s, ',')
		switch {
		case lastDot >= 0 && lastComma >= 0:
			if lastDot > lastComma {
				dec, thou = '.', ','
			} else {
				dec, thou = ',', '.'
			}
		case lastDot >= 0 || lastComma >= 0:
			c := byte('.')
			if lastComma >= 0 {
				c = ','
			}
			if strings.Count(s, string(c)) > 1 || (preferThousands && groupedByThousands(s, c)) {
				thou = c
			} else {
				dec = c
			}
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case thou != 0 && ch == thou:
		case dec != 0 && ch == dec:
			b.WriteByte('.')
		case ch >= '0' && ch <= '9':
			b.WriteByte(ch)
		case (ch == '-' || ch == '+') && i == 0:
			b.WriteByte(ch)
		default:
			return "", errNotNumber
		}
	}
	out := b.String()
	if strings.Count(out, ".") > 1 || strings.Trim(out, "+-.") == "" {
		return "", errNotNumber
	}
	return out, nil
}

// groupedByThousands reports whether every group after the first c is exactly
// three digits.
func groupedByThousands(s string, c byte) bool {
	parts := strings.Split(strings.TrimLeft(s, "+-"), string(c))
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func parseDecimal(s, sep string) (decimal.Decimal, error) {
	n, err := normalizeNumber(s, sep, false)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", err, s)
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", errNotNumber, s)
	}
	return d, nil
}

func parseInteger(s, sep string) (int64, error) {
	n, err := normalizeNumber(s, sep, true)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, s)
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errNotNumber, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("out of range: %q", s)
	}
	return d.IntPart(), nil
}

var boolWords = map[string]bool{
	"true": true, "1": true, "sim": true, "s": true, "yes": true, "y": true,
	"false": false, "0": false, "não": false, "nao": false, "n": false, "no": false,
}

func parseBool(s string) (bool, bool) {
	v, ok := boolWords[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}
