package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fairlens/fairlens/internal/harmonize"
	"github.com/fairlens/fairlens/internal/loader"
	"github.com/fairlens/fairlens/internal/mapping"
	"github.com/fairlens/fairlens/internal/merge"
	"github.com/fairlens/fairlens/internal/metrics"
	"github.com/fairlens/fairlens/internal/report"
	"github.com/fairlens/fairlens/internal/schema"
)

// Result carries everything a run produces: the merged dataset, the
// deterministic report, and the run-scoped diagnostics.
type Result struct {
	Dataset     *schema.Dataset
	Report      *report.Report
	Diagnostics *report.Diagnostics
}

// Run executes a job end to end: load each source, harmonize, merge,
// evaluate, report.
//
// Failures are contained at the narrowest scope that can absorb them.
// A record that cannot be harmonized drops that record; a source that
// cannot be read drops that source. Only configuration problems and a
// run where no source yields any record escalate as errors.
func Run(ctx context.Context, job *Job) (*Result, error) {
	mappings, errs := mapping.Load(job.Mappings, mapping.FailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	for _, src := range job.Sources {
		if _, ok := mappings.Get(src.Name); !ok {
			return nil, fmt.Errorf("source %q has no mapping in %s", src.Name, job.Mappings)
		}
	}

	diags := report.NewDiagnostics()
	perSource := make([][]schema.Record, 0, len(job.Sources))

	for _, src := range job.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, _ := mappings.Get(src.Name)
		recs, err := runSource(src, m, diags)
		if err != nil {
			diags.AddLoadFailure(src.Name, err)
			continue
		}
		perSource = append(perSource, recs)
	}

	ds, warnings := merge.Merge(perSource...)
	diags.MergeWarnings = warnings
	if ds.Len() == 0 {
		return nil, fmt.Errorf("no source produced any record")
	}

	dim, err := schema.ParseDimension(job.Metrics.Dimension)
	if err != nil {
		return nil, err
	}
	ev, err := metrics.Evaluate(ds, metrics.Config{
		Dimension:  dim,
		Privileged: job.Metrics.Privileged,
		MinSample:  job.Metrics.MinSample,
		ChiSquare:  job.Metrics.ChiSquare,
		Reweighing: job.Metrics.Reweighing,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Dataset:     ds,
		Report:      report.Build(ds, ev),
		Diagnostics: diags,
	}, nil
}

// runSource loads and harmonizes one file. Record-level drops are
// recorded on diags; only source-level failures return an error.
func runSource(src SourceRef, m *mapping.Mapping, diags *report.Diagnostics) ([]schema.Record, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := loader.New(src.Name, f, m.Format)
	if err != nil {
		return nil, err
	}

	h := harmonize.New(m)
	var (
		recs  []schema.Record
		drops []report.DropNote
	)
	for {
		raw, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := h.Record(raw)
		if err != nil {
			if harmonize.IsHarmonizationError(err) {
				drops = append(drops, report.DropNote{Line: raw.Line, Reason: err.Error()})
				continue
			}
			return nil, err
		}
		recs = append(recs, rec)
	}

	diags.AddSource(h.Tally(), drops)
	return recs, nil
}
