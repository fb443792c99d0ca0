// Package merge combines harmonized per-source record sequences into
// one analysis-ready dataset.
//
// The merge is a harmonized concatenation, not a relational join:
// source datasets use incompatible id namespaces, so records are never
// linked across sources. Within a source, records sharing a non-empty
// applicant id are deduplicated first-seen-wins with a warning per
// conflict; id-less records are unlinkable singletons and pass through
// as-is. Quality issues are flagged for downstream reporting, never
// silently discarded.
package merge

import (
	"fmt"

	"github.com/fairlens/fairlens/internal/schema"
)

// WarningKind categorizes merge quality warnings.
type WarningKind string

const (
	// WarnDuplicateID marks a record discarded because an earlier
	// record from the same source carried the same applicant id.
	WarnDuplicateID WarningKind = "duplicate_id"

	// WarnUnknownDemographics marks a kept record whose demographic
	// fields are all unknown; it contributes nothing to any grouped
	// metric except the composite unknown group.
	WarnUnknownDemographics WarningKind = "unknown_demographics"
)

// Warning is one merge quality finding, surfaced through diagnostics.
type Warning struct {
	Kind        WarningKind `json:"kind"`
	Source      string      `json:"source"`
	ApplicantID string      `json:"applicant_id,omitempty"`
}

func (w Warning) String() string {
	if w.ApplicantID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", w.Source, w.Kind, w.ApplicantID)
	}
	return fmt.Sprintf("%s: %s", w.Source, w.Kind)
}

// Merge combines per-source record slices into one Dataset. Input
// slices are not mutated; record order is preserved (sources in the
// given order, records in source order).
//
// For a source with N records of which M carry distinct non-empty ids,
// the output contains exactly M + (N - records-with-id) entries.
func Merge(sources ...[]schema.Record) (*schema.Dataset, []Warning) {
	var warnings []Warning
	ds := &schema.Dataset{}

	for _, records := range sources {
		// Ids are deduplicated per source: the same id appearing in a
		// different source is a different applicant.
		seen := make(map[string]bool)

		for _, rec := range records {
			if rec.ApplicantID != "" {
				key := rec.Source + "\x00" + rec.ApplicantID
				if seen[key] {
					warnings = append(warnings, Warning{
						Kind:        WarnDuplicateID,
						Source:      rec.Source,
						ApplicantID: rec.ApplicantID,
					})
					continue
				}
				seen[key] = true
			}

			if rec.DemographicsUnknown() {
				warnings = append(warnings, Warning{
					Kind:        WarnUnknownDemographics,
					Source:      rec.Source,
					ApplicantID: rec.ApplicantID,
				})
			}

			ds.Records = append(ds.Records, rec)
		}
	}

	return ds, warnings
}
