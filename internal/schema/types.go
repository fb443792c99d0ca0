package schema

import (
	"fmt"
	"strings"
)

// Category is a categorical demographic value. The zero value is not
// valid; harmonization always produces either a mapped canonical value
// or Unknown. Treating Unknown as an ordinary category means group-by
// logic downstream never needs a null-check.
type Category string

// Unknown is the fallback category for unmapped or absent demographic
// values.
const Unknown Category = "unknown"

// Canonical gender categories. Race and treatment are open sets and
// carry whatever canonical spellings the mapping tables define.
const (
	Male   Category = "male"
	Female Category = "female"
)

// Known reports whether the category carries a mapped value.
func (c Category) Known() bool {
	return c != Unknown && c != ""
}

// Record is one harmonized applicant row. Every Record has a non-empty
// Source and a definite Outcome; demographic fields may be Unknown but
// are never empty.
type Record struct {
	// ApplicantID is the source-local identifier. Empty when the source
	// carries no identifiers; such records are unlinkable singletons.
	ApplicantID string `json:"applicant_id,omitempty"`

	// Gender is one of Male, Female, or Unknown.
	Gender Category `json:"gender"`

	// Race is an open categorical set with Unknown fallback.
	Race Category `json:"race"`

	// Treatment is the source-defined socio-economic bucket.
	Treatment Category `json:"treatment_group"`

	// Outcome is true for a favorable result (callback / hire).
	Outcome bool `json:"outcome"`

	// Source tags the originating dataset. Always non-empty.
	Source string `json:"source"`
}

// Validate checks the Record invariants. Harmonization is the only
// producer of Records, so a failure here indicates a construction bug,
// not bad input data.
func (r Record) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("record has empty source")
	}
	for _, f := range []struct {
		name string
		val  Category
	}{
		{"gender", r.Gender},
		{"race", r.Race},
		{"treatment_group", r.Treatment},
	} {
		if f.val == "" {
			return fmt.Errorf("record from %q has absent %s: demographics must be unknown, never empty", r.Source, f.name)
		}
	}
	return nil
}

// DemographicsUnknown reports whether every demographic field is
// Unknown. Such rows are still counted, but flagged for data-quality
// review.
func (r Record) DemographicsUnknown() bool {
	return !r.Gender.Known() && !r.Race.Known() && !r.Treatment.Known()
}

// Dataset is an ordered, merged sequence of Records. Invariant
// (established by the merge engine): no two records share a non-empty
// ApplicantID within the same Source.
type Dataset struct {
	Records []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Sources returns the distinct source tags in first-seen order.
func (d *Dataset) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range d.Records {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}

// Dimension selects the grouping axis for fairness evaluation.
type Dimension string

const (
	DimGender    Dimension = "gender"
	DimRace      Dimension = "race"
	DimTreatment Dimension = "treatment_group"

	// DimComposite groups by the combination of all three demographic
	// fields, joined in fixed order so group keys are deterministic.
	DimComposite Dimension = "composite"
)

// ValidDimensions lists the accepted grouping dimensions.
var ValidDimensions = []Dimension{DimGender, DimRace, DimTreatment, DimComposite}

// ParseDimension converts a string to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidDimensions {
		if d == v {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid dimension %q: must be one of %v", s, ValidDimensions)
}

// Key returns the group key for a record along this dimension.
// Composite keys join gender|race|treatment with "|"; the field order
// is fixed so identical inputs always produce identical keys.
func (d Dimension) Key(r Record) string {
	switch d {
	case DimGender:
		return string(r.Gender)
	case DimRace:
		return string(r.Race)
	case DimTreatment:
		return string(r.Treatment)
	case DimComposite:
		return string(r.Gender) + "|" + string(r.Race) + "|" + string(r.Treatment)
	default:
		return ""
	}
}
