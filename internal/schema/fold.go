package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fold normalizes a raw categorical spelling for table lookup: NFC
// normalization, surrounding whitespace trimmed, lowercased. "Female",
// " FEMALE " and "female" all fold to "female". Folding is applied to
// both normalization-table keys and incoming raw values, so lookups
// are spelling-insensitive by construction.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// nullSpellings are folded values treated as absent. Mirrors the usual
// coerce-then-drop handling of survey and spreadsheet exports.
var nullSpellings = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
}

// IsNull reports whether a raw value is one of the conventional null
// spellings after folding.
func IsNull(raw string) bool {
	return nullSpellings[Fold(raw)]
}
