package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fairlens/fairlens/internal/report"
	"github.com/fairlens/fairlens/internal/schema"
)

// Run is one completed analysis handed to the store for export.
type Run struct {
	Name        string
	CreatedAt   time.Time
	Dataset     *schema.Dataset
	Report      *report.Report
	Diagnostics *report.Diagnostics
}

// ExportRun writes a run and all its detail rows in one transaction,
// keyed by the run token. Re-exporting the same run token is a no-op:
// the runs insert uses ON CONFLICT DO NOTHING and the detail rows are
// only written when the run row was new.
func (s *Store) ExportRun(ctx context.Context, run Run) error {
	encoded, err := run.Report.Encode()
	if err != nil {
		return fmt.Errorf("export run: %w", err)
	}
	ev := run.Report.Evaluation

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export run: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, name, created_at, dimension, privileged, min_sample, record_count, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.Diagnostics.RunID,
		run.Name,
		run.CreatedAt.UTC().Format(time.RFC3339),
		string(ev.Dimension),
		ev.Privileged,
		ev.MinSample,
		run.Dataset.Len(),
		encoded,
	)
	if err != nil {
		return fmt.Errorf("export run: insert run: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("export run: rows affected: %w", err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	runID := run.Diagnostics.RunID
	for _, rec := range run.Dataset.Records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records
			(run_id, source, applicant_id, gender, race, treatment, outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, rec.Source, rec.ApplicantID,
			string(rec.Gender), string(rec.Race), string(rec.Treatment),
			rec.Outcome)
		if err != nil {
			return fmt.Errorf("export run: insert record: %w", err)
		}
	}

	for _, g := range ev.Groups {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_stats
			(run_id, group_key, count, positive, selection_rate)
			VALUES (?, ?, ?, ?, ?)
		`, runID, g.Key, g.Count, g.Positive, g.Rate)
		if err != nil {
			return fmt.Errorf("export run: insert group stat: %w", err)
		}
	}

	for _, m := range ev.Metrics {
		var di any // NULL marks an undefined ratio
		if m.DIDefined {
			di = m.DisparateImpact
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_metrics
			(run_id, group_key, disparate_impact, parity_difference, adverse_impact, high_disparity)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, m.Group, di, m.ParityDifference, m.AdverseImpact, m.HighDisparity)
		if err != nil {
			return fmt.Errorf("export run: insert group metrics: %w", err)
		}
	}

	for _, ex := range ev.Excluded {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exclusions (run_id, group_key, reason, count)
			VALUES (?, ?, ?, ?)
		`, runID, ex.Group, ex.Reason, ex.Count)
		if err != nil {
			return fmt.Errorf("export run: insert exclusion: %w", err)
		}
	}

	for _, src := range run.Diagnostics.Sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO source_stats
			(run_id, source, seen, dropped, produced, load_failure)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, src.Source, src.Seen, src.Dropped, src.Produced, src.LoadFailure)
		if err != nil {
			return fmt.Errorf("export run: insert source stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export run: commit: %w", err)
	}
	return nil
}
