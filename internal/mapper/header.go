package mapper

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldHeader reduces a column name to a comparison key: accents removed,
// lower-cased, with spaces, underscores, hyphens and dots dropped. "Data do
// Abastecimento" and "data_do_abastecimento" fold to the same key.
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '_', r == '-', r == '.':
			return -1
		}
		return unicode.ToLower(r)
	}, out)
}
