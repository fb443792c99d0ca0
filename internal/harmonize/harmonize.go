// Package harmonize maps raw source rows onto the canonical schema.
//
// Each RawRecord plus its source mapping produces exactly one Record.
// Demographics degrade gracefully: an unmapped or absent value becomes
// Unknown and is tallied, never dropped silently. The outcome field is
// the single mandatory input; a record whose outcome is absent or
// unparseable is dropped with a HarmonizationError, counted, and the
// pipeline continues.
package harmonize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fairlens/fairlens/internal/loader"
	"github.com/fairlens/fairlens/internal/mapping"
	"github.com/fairlens/fairlens/internal/schema"
)

// Harmonizer converts RawRecords from one source into canonical
// Records, accumulating a coverage tally as it goes.
type Harmonizer struct {
	m     *mapping.Mapping
	tally *Tally
}

// New creates a Harmonizer for one source mapping.
func New(m *mapping.Mapping) *Harmonizer {
	return &Harmonizer{m: m, tally: NewTally(m.Source)}
}

// Record harmonizes one raw row. On a missing or unparseable outcome
// it returns a HarmonizationError and the record counts as dropped;
// every other defect degrades to Unknown.
func (h *Harmonizer) Record(raw loader.RawRecord) (schema.Record, error) {
	h.tally.Seen++

	outcome, err := h.outcome(raw)
	if err != nil {
		h.tally.Dropped++
		return schema.Record{}, err
	}

	rec := schema.Record{
		Source:    h.m.Source,
		Outcome:   outcome,
		Gender:    h.lookupMapped(FieldGender, h.m.Gender, raw),
		Race:      h.lookupMapped(FieldRace, h.m.Race, raw),
		Treatment: h.treatment(raw),
	}

	// Ids keep their case: folding could merge identifiers that are
	// distinct in the source's namespace.
	if h.m.IDColumn != "" {
		if v, ok := raw.Get(h.m.IDColumn); ok {
			rec.ApplicantID = strings.TrimSpace(v)
		}
	}

	h.tally.Produced++
	return rec, nil
}

// Tally returns the coverage tally accumulated so far. The returned
// pointer stays live; read it after the source is drained.
func (h *Harmonizer) Tally() *Tally {
	return h.tally
}

func (h *Harmonizer) outcome(raw loader.RawRecord) (bool, error) {
	v, ok := raw.Get(h.m.Outcome.Column)
	if !ok {
		return false, &HarmonizationError{
			Source: h.m.Source, Line: raw.Line, Column: h.m.Outcome.Column,
			Reason: "outcome column absent from row",
		}
	}
	if schema.IsNull(v) {
		return false, &HarmonizationError{
			Source: h.m.Source, Line: raw.Line, Column: h.m.Outcome.Column,
			Reason: fmt.Sprintf("outcome value %q is unparseable", v),
		}
	}
	return h.m.Outcome.Truthy[schema.Fold(v)], nil
}

// lookupMapped resolves a table-mapped demographic field. A nil table
// means the source has no such column; that is configuration, not a
// coverage gap, so it is not tallied.
func (h *Harmonizer) lookupMapped(field Field, vm *mapping.ValueMap, raw loader.RawRecord) schema.Category {
	if vm == nil {
		return schema.Unknown
	}
	v, ok := raw.Get(vm.Column)
	if !ok || schema.Fold(v) == "" {
		return schema.Unknown
	}
	c, mapped := vm.Lookup(v)
	if !mapped {
		h.tally.CountUnmapped(field, schema.Fold(v))
	}
	return c
}

// treatment has no normalization table: the folded raw value is the
// category.
func (h *Harmonizer) treatment(raw loader.RawRecord) schema.Category {
	if h.m.TreatmentColumn == "" {
		return schema.Unknown
	}
	v, ok := raw.Get(h.m.TreatmentColumn)
	if !ok {
		return schema.Unknown
	}
	if schema.IsNull(v) {
		return schema.Unknown
	}
	return schema.Category(schema.Fold(v))
}

// HarmonizationError reports a record whose mandatory outcome field is
// absent or unparseable. The record is dropped and counted; the
// pipeline continues.
type HarmonizationError struct {
	Source string
	Line   int
	Column string
	Reason string
}

func (e *HarmonizationError) Error() string {
	return fmt.Sprintf("%s:%d: column %q: %s", e.Source, e.Line, e.Column, e.Reason)
}

// IsHarmonizationError reports whether err is a HarmonizationError,
// unwrapping as needed.
func IsHarmonizationError(err error) bool {
	var he *HarmonizationError
	return errors.As(err, &he)
}
