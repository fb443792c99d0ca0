package report

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/fairlens/fairlens/internal/harmonize"
	"github.com/fairlens/fairlens/internal/merge"
)

// Diagnostics is the advisory data-quality channel: unmapped
// categorical values, dropped records, duplicate-id warnings. Analysts
// consume it to detect coverage gaps; it is never part of the
// computational contract and never appears in canonical report bytes
// (the run id alone would break byte-identity).
type Diagnostics struct {
	RunID         string
	Sources       []SourceDiagnostics
	MergeWarnings []merge.Warning
}

// SourceDiagnostics collects quality findings for one source.
type SourceDiagnostics struct {
	Source   string
	Seen     int
	Dropped  int
	Produced int

	Unmapped []harmonize.UnmappedValue

	// Drops lists individual dropped records (missing outcome).
	Drops []DropNote

	// LoadFailure is the error text when the whole source was skipped
	// as unreadable; the remaining fields are then zero.
	LoadFailure string
}

// DropNote records one record dropped during harmonization.
type DropNote struct {
	Line   int
	Reason string
}

// NewDiagnostics creates a Diagnostics with a fresh run token.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{RunID: uuid.NewString()}
}

// AddSource appends findings for one successfully loaded source.
func (d *Diagnostics) AddSource(t *harmonize.Tally, drops []DropNote) {
	d.Sources = append(d.Sources, SourceDiagnostics{
		Source:   t.Source,
		Seen:     t.Seen,
		Dropped:  t.Dropped,
		Produced: t.Produced,
		Unmapped: t.Unmapped(),
		Drops:    drops,
	})
}

// AddLoadFailure records a source skipped as unreadable.
func (d *Diagnostics) AddLoadFailure(source string, err error) {
	d.Sources = append(d.Sources, SourceDiagnostics{
		Source:      source,
		LoadFailure: err.Error(),
	})
}

// Emit writes every finding through the logger. Nothing is absorbed
// invisibly: unmapped values, dropped records and duplicate ids always
// surface here even when the run succeeds.
func (d *Diagnostics) Emit(logger *slog.Logger) {
	logger = logger.With("run_id", d.RunID)

	for _, s := range d.Sources {
		if s.LoadFailure != "" {
			logger.Error("source unreadable, skipped", "source", s.Source, "error", s.LoadFailure)
			continue
		}
		logger.Info("source harmonized",
			"source", s.Source, "seen", s.Seen, "dropped", s.Dropped, "produced", s.Produced)
		for _, u := range s.Unmapped {
			logger.Warn("unmapped categorical value",
				"source", s.Source, "field", string(u.Field), "value", u.Value, "count", u.Count)
		}
		for _, drop := range s.Drops {
			logger.Warn("record dropped", "source", s.Source, "line", drop.Line, "reason", drop.Reason)
		}
	}

	for _, w := range d.MergeWarnings {
		switch w.Kind {
		case merge.WarnDuplicateID:
			logger.Warn("duplicate applicant id, first-seen kept",
				"source", w.Source, "applicant_id", w.ApplicantID)
		case merge.WarnUnknownDemographics:
			logger.Warn("record has fully unknown demographics", "source", w.Source)
		}
	}
}
