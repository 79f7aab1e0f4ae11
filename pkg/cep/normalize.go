package cep

import (
	"strings"
	"unicode"

	"github.com/sells-group/cep-loader/internal/model"
)

// NormalizeCEP keeps only the ASCII digits of raw, in their original order.
func NormalizeCEP(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeRows normalizes every row's postal code and drops rows left
// with nothing. Survivors keep their input order.
func NormalizeRows(rows []model.Row) []model.NormalizedRow {
	out := make([]model.NormalizedRow, 0, len(rows))
	for _, r := range rows {
		code := NormalizeCEP(r.PostalCode)
		if code == "" {
			continue
		}
		out = append(out, model.NormalizedRow{
			Name:       r.Name,
			Age:        r.Age,
			PostalCode: code,
		})
	}
	return out
}
