// Package mapping loads and compiles per-source harmonization
// configuration. Mappings are written in CUE and validated against an
// embedded schema, keeping the harmonization rules inspectable and
// testable independent of any particular dataset: column renames live
// in config, never in code.
package mapping

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/fairlens/fairlens/internal/loader"
	"github.com/fairlens/fairlens/internal/schema"
)

// ValueMap maps one source column's raw spellings onto canonical
// categories. Keys are stored folded (see schema.Fold); lookups fold
// the incoming value the same way.
type ValueMap struct {
	Column string
	Values map[string]schema.Category
}

// Lookup resolves a raw value to its canonical category. Unmapped
// values resolve to Unknown and ok=false so callers can tally the gap.
func (m *ValueMap) Lookup(raw string) (schema.Category, bool) {
	if c, ok := m.Values[schema.Fold(raw)]; ok {
		return c, true
	}
	return schema.Unknown, false
}

// Outcome describes how to read the mandatory outcome field.
type Outcome struct {
	Column string
	Truthy map[string]bool // folded spellings meaning favorable
}

// Mapping is the compiled harmonization configuration for one source.
type Mapping struct {
	Source string
	Format loader.Format

	// IDColumn is empty when the source has no identifiers.
	IDColumn string

	// Gender and Race are nil when the source lacks the column; every
	// record then gets Unknown for that field.
	Gender *ValueMap
	Race   *ValueMap

	// TreatmentColumn is empty when the source has no treatment
	// bucket. Raw values are folded and used as categories directly.
	TreatmentColumn string

	Outcome Outcome
}

// CompileMapping converts one validated #Source CUE value into a
// Mapping. The value must already be unified with the embedded schema;
// compile errors here indicate values the schema admits but the
// pipeline cannot use (e.g. an unparseable format string).
func CompileMapping(name string, v cue.Value) (*Mapping, error) {
	if err := v.Err(); err != nil {
		return nil, &Error{Code: ErrCodeCompile, Message: err.Error(), Pos: v.Pos()}
	}

	m := &Mapping{Source: name}

	formatStr, err := stringField(v, "format")
	if err != nil {
		return nil, err
	}
	m.Format, err = loader.ParseFormat(formatStr)
	if err != nil {
		return nil, &Error{Code: ErrCodeCompile, Message: err.Error(), Pos: v.Pos()}
	}

	if idVal := v.LookupPath(cue.ParsePath("id_column")); idVal.Exists() {
		m.IDColumn, err = cueString(idVal)
		if err != nil {
			return nil, err
		}
	}

	// Gender is a closed set; race is open.
	if m.Gender, err = valueMapField(v, "gender", genderCategories); err != nil {
		return nil, err
	}
	if m.Race, err = valueMapField(v, "race", nil); err != nil {
		return nil, err
	}

	if tVal := v.LookupPath(cue.ParsePath("treatment_column")); tVal.Exists() {
		m.TreatmentColumn, err = cueString(tVal)
		if err != nil {
			return nil, err
		}
	}

	outVal := v.LookupPath(cue.ParsePath("outcome"))
	if !outVal.Exists() {
		return nil, &Error{Code: ErrCodeCompile, Message: fmt.Sprintf("source %q: outcome is required", name), Pos: v.Pos()}
	}
	m.Outcome.Column, err = stringField(outVal, "column")
	if err != nil {
		return nil, err
	}
	m.Outcome.Truthy = make(map[string]bool)
	truthyIter, err := outVal.LookupPath(cue.ParsePath("truthy")).List()
	if err != nil {
		return nil, &Error{Code: ErrCodeCompile, Message: fmt.Sprintf("source %q: outcome.truthy: %v", name, err), Pos: outVal.Pos()}
	}
	for truthyIter.Next() {
		s, err := cueString(truthyIter.Value())
		if err != nil {
			return nil, err
		}
		m.Outcome.Truthy[schema.Fold(s)] = true
	}
	if len(m.Outcome.Truthy) == 0 {
		return nil, &Error{Code: ErrCodeCompile, Message: fmt.Sprintf("source %q: outcome.truthy is empty", name), Pos: outVal.Pos()}
	}

	return m, nil
}

// genderCategories is the closed canonical gender set.
var genderCategories = map[schema.Category]bool{
	schema.Male:    true,
	schema.Female:  true,
	schema.Unknown: true,
}

// valueMapField compiles an optional #ValueMap block. When allowed is
// non-nil, canonical values outside it are rejected.
func valueMapField(v cue.Value, field string, allowed map[schema.Category]bool) (*ValueMap, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}

	vm := &ValueMap{Values: make(map[string]schema.Category)}
	var err error
	vm.Column, err = stringField(fv, "column")
	if err != nil {
		return nil, err
	}

	iter, err := fv.LookupPath(cue.ParsePath("values")).Fields()
	if err != nil {
		return nil, &Error{Code: ErrCodeCompile, Message: fmt.Sprintf("%s.values: %v", field, err), Pos: fv.Pos()}
	}
	for iter.Next() {
		canonical, err := cueString(iter.Value())
		if err != nil {
			return nil, err
		}
		if allowed != nil && !allowed[schema.Category(canonical)] {
			return nil, &Error{
				Code:    ErrCodeCompile,
				Message: fmt.Sprintf("%s.values: %q is not a valid canonical %s category", field, canonical, field),
				Pos:     iter.Value().Pos(),
			}
		}
		key := schema.Fold(iter.Label())
		if prev, dup := vm.Values[key]; dup && prev != schema.Category(canonical) {
			return nil, &Error{
				Code:    ErrCodeCompile,
				Message: fmt.Sprintf("%s.values: spellings %q fold together but map to %q and %q", field, key, prev, canonical),
				Pos:     iter.Value().Pos(),
			}
		}
		vm.Values[key] = schema.Category(canonical)
	}
	return vm, nil
}

func stringField(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &Error{Code: ErrCodeCompile, Message: fmt.Sprintf("%s is required", field), Pos: v.Pos()}
	}
	return cueString(fv)
}

func cueString(v cue.Value) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &Error{Code: ErrCodeCompile, Message: err.Error(), Pos: v.Pos()}
	}
	return s, nil
}

// Error codes for mapping configuration failures.
const (
	ErrCodeNotFound = "M001" // mappings directory not found
	ErrCodeNoFiles  = "M002" // no CUE files found
	ErrCodeLoad     = "M003" // CUE load/build failed
	ErrCodeSchema   = "M004" // schema validation failed
	ErrCodeCompile  = "M005" // compile to Mapping failed
	ErrCodeEmpty    = "M006" // no sources defined
)

// Error is a mapping configuration error with an optional CUE position.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
