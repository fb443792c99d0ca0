// Package report renders evaluation results into the immutable
// FairnessReport handed to downstream reporters, and carries the
// advisory diagnostics channel alongside it.
//
// Report bytes come only from the canonical encoder: re-running the
// pipeline on identical inputs and configuration yields byte-identical
// output. Anything nondeterministic (run ids, timing) lives in
// Diagnostics, which is advisory and outside the computational
// contract.
package report

import (
	"fmt"
	"strings"

	"github.com/fairlens/fairlens/internal/metrics"
	"github.com/fairlens/fairlens/internal/schema"
)

// Report is the structured fairness output for one evaluation run.
// Built once from a dataset snapshot and its evaluation; immutable
// after Build.
type Report struct {
	// Records and SourceCounts summarize the merged dataset snapshot.
	Records      int
	SourceCounts map[string]int

	Evaluation *metrics.Evaluation
}

// Build assembles a Report from a merged dataset and its evaluation.
func Build(ds *schema.Dataset, ev *metrics.Evaluation) *Report {
	counts := make(map[string]int)
	for _, r := range ds.Records {
		counts[r.Source]++
	}
	return &Report{
		Records:      ds.Len(),
		SourceCounts: counts,
		Evaluation:   ev,
	}
}

// Encode returns the canonical JSON bytes of the report.
func (r *Report) Encode() ([]byte, error) {
	return schema.MarshalCanonical(r.toCanonicalMap())
}

// toCanonicalMap converts the report to the map form the canonical
// encoder accepts. Absent values are omitted entirely; the encoder
// forbids null.
func (r *Report) toCanonicalMap() map[string]any {
	ev := r.Evaluation

	sources := make(map[string]any, len(r.SourceCounts))
	for s, n := range r.SourceCounts {
		sources[s] = n
	}

	groups := make([]any, len(ev.Groups))
	for i, g := range ev.Groups {
		groups[i] = map[string]any{
			"key":            g.Key,
			"count":          g.Count,
			"positive":       g.Positive,
			"selection_rate": g.Rate,
		}
	}

	di := make(map[string]any)
	dpd := make(map[string]any)
	var diUndefined []any
	var adverse, highDisparity []any
	for _, m := range ev.Metrics {
		dpd[m.Group] = m.ParityDifference
		if m.DIDefined {
			di[m.Group] = m.DisparateImpact
		} else {
			diUndefined = append(diUndefined, map[string]any{
				"group":  m.Group,
				"reason": metrics.ReasonMetricUndefined,
			})
		}
		if m.AdverseImpact {
			adverse = append(adverse, m.Group)
		}
		if m.HighDisparity {
			highDisparity = append(highDisparity, m.Group)
		}
	}

	excluded := make([]any, len(ev.Excluded))
	for i, e := range ev.Excluded {
		excluded[i] = map[string]any{
			"group":  e.Group,
			"reason": e.Reason,
			"count":  e.Count,
		}
	}

	out := map[string]any{
		"dataset": map[string]any{
			"records": r.Records,
			"sources": sources,
		},
		"dimension":        ev.Dimension,
		"privileged_group": ev.Privileged,
		"min_sample":       ev.MinSample,
		"groups":           groups,
		"metrics": map[string]any{
			"disparate_impact":              di,
			"demographic_parity_difference": dpd,
		},
		"excluded": excluded,
		"flags": map[string]any{
			"adverse_impact": orEmpty(adverse),
			"high_disparity": orEmpty(highDisparity),
		},
	}
	if len(diUndefined) > 0 {
		out["undefined"] = map[string]any{"disparate_impact": diUndefined}
	}
	if ev.ChiSquare != nil {
		out["chi_square"] = map[string]any{
			"statistic":          ev.ChiSquare.Statistic,
			"degrees_of_freedom": ev.ChiSquare.DF,
			"p_value":            ev.ChiSquare.PValue,
			"significant":        ev.ChiSquare.Significant,
		}
	}
	if ev.Reweighing != nil {
		out["reweighing"] = reweighingMap(ev.Reweighing)
	}
	return out
}

func reweighingMap(rw *metrics.Reweighing) map[string]any {
	weights := make(map[string]any, len(rw.Weights))
	for group, cells := range rw.Weights {
		cm := make(map[string]any, len(cells))
		for outcome, w := range cells {
			cm[outcome] = w
		}
		weights[group] = cm
	}

	after := make([]any, len(rw.After))
	for i, m := range rw.After {
		entry := map[string]any{
			"group": m.Group,
			"demographic_parity_difference": m.ParityDifference,
		}
		if m.DIDefined {
			entry["disparate_impact"] = m.DisparateImpact
		}
		after[i] = entry
	}

	return map[string]any{
		"weights": weights,
		"after":   after,
	}
}

func orEmpty(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}

// Summary renders a short human-readable view for the text output
// format. Not canonical; use Encode for machine consumption.
func (r *Report) Summary() string {
	ev := r.Evaluation
	var b strings.Builder

	fmt.Fprintf(&b, "Merged %d records from %d source(s); grouped by %s (privileged: %s)\n",
		r.Records, len(r.SourceCounts), ev.Dimension, ev.Privileged)
	for _, g := range ev.Groups {
		fmt.Fprintf(&b, "  %-24s n=%-6d positive=%-6d rate=%.4f\n", g.Key, g.Count, g.Positive, g.Rate)
	}
	for _, m := range ev.Metrics {
		if m.DIDefined {
			flag := ""
			if m.AdverseImpact {
				flag = "  [adverse impact]"
			}
			fmt.Fprintf(&b, "  %-24s DI=%.4f DPD=%+.4f%s\n", m.Group, m.DisparateImpact, m.ParityDifference, flag)
		} else {
			fmt.Fprintf(&b, "  %-24s DI=undefined DPD=%+.4f\n", m.Group, m.ParityDifference)
		}
	}
	for _, e := range ev.Excluded {
		fmt.Fprintf(&b, "  %-24s excluded (%s, n=%d)\n", e.Group, e.Reason, e.Count)
	}
	if ev.ChiSquare != nil {
		fmt.Fprintf(&b, "  chi-square: stat=%.4f df=%d p=%.4f significant=%v\n",
			ev.ChiSquare.Statistic, ev.ChiSquare.DF, ev.ChiSquare.PValue, ev.ChiSquare.Significant)
	}
	return b.String()
}
