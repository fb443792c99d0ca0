package harmonize

import (
	"sort"
)

// Field names the demographic fields whose normalization tables can
// have coverage gaps.
type Field string

const (
	FieldGender Field = "gender"
	FieldRace   Field = "race"
)

// Tally records harmonization coverage for one source. Incomplete
// normalization tables are the component's main silent-data-loss risk,
// so every unmapped spelling is counted and reportable rather than
// merely resolved to Unknown.
type Tally struct {
	Source string

	// Seen, Dropped and Produced satisfy Seen == Dropped + Produced
	// once the source is drained.
	Seen     int
	Dropped  int
	Produced int

	// unmapped counts folded raw spellings that no table entry
	// covered, per field.
	unmapped map[Field]map[string]int
}

// NewTally creates an empty tally for a source.
func NewTally(source string) *Tally {
	return &Tally{
		Source:   source,
		unmapped: make(map[Field]map[string]int),
	}
}

// CountUnmapped records one occurrence of an unmapped spelling.
func (t *Tally) CountUnmapped(field Field, folded string) {
	if t.unmapped[field] == nil {
		t.unmapped[field] = make(map[string]int)
	}
	t.unmapped[field][folded]++
}

// UnmappedValue is one coverage gap: a raw spelling (folded) that a
// normalization table did not cover, with its occurrence count.
type UnmappedValue struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Unmapped returns all coverage gaps sorted by field then value, so
// the diagnostics output is deterministic.
func (t *Tally) Unmapped() []UnmappedValue {
	var out []UnmappedValue
	for field, values := range t.unmapped {
		for v, n := range values {
			out = append(out, UnmappedValue{Field: field, Value: v, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// HasGaps reports whether any unmapped spelling was seen.
func (t *Tally) HasGaps() bool {
	for _, values := range t.unmapped {
		if len(values) > 0 {
			return true
		}
	}
	return false
}
