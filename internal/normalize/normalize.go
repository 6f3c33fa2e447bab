// Package normalize canonicalizes raw submission fields before matching.
// All functions are pure and never fail: values that cannot be normalized
// come back as the empty string or as a flagged passthrough.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

var folder = cases.Fold()

// nullValues are cell contents that mean "no value" in member spreadsheets.
var nullValues = map[string]bool{
	"null": true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"-":    true,
}

// Clean trims, NFKC-normalizes, case-folds, and collapses internal
// whitespace. Placeholder values like "null" or "n/a" normalize to "".
func Clean(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = folder.String(s)
	s = strings.Join(strings.Fields(s), " ")
	if nullValues[s] {
		return ""
	}
	return s
}

// Record normalizes one raw row into a candidate record. The raw values are
// kept alongside the normalized ones for audit and review display.
func Record(raw model.RawRecord) model.CandidateRecord {
	rec := model.CandidateRecord{
		SourceFile: raw.SourceFile,
		RowIndex:   raw.RowIndex,
		Raw:        raw,
		Name:       Clean(raw.Name),
		Type:       model.ParseEntityType(Clean(raw.Type)),
	}

	country := Clean(raw.Country)
	if country == "" {
		return rec
	}

	if code, name, ok := Country(country); ok {
		rec.CountryCode = code
		rec.Country = name
	} else {
		rec.Country = country
		rec.CountryUncertain = true
	}
	return rec
}
