package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunInfo is the runs-table view of one stored analysis.
type RunInfo struct {
	RunID       string
	Name        string
	CreatedAt   time.Time
	Dimension   string
	Privileged  string
	MinSample   int
	RecordCount int
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, created_at, dimension, privileged, min_sample, record_count
		FROM runs
		ORDER BY created_at DESC, run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			created string
		)
		if err := rows.Scan(&info.RunID, &info.Name, &created,
			&info.Dimension, &info.Privileged, &info.MinSample, &info.RecordCount); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		info.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("list runs: created_at %q: %w", created, err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// ReportBytes returns the canonical report stored for a run, exactly
// as it was exported.
func (s *Store) ReportBytes(ctx context.Context, runID string) ([]byte, error) {
	var encoded []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM runs WHERE run_id = ?", runID).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("report for run %q: %w", runID, err)
	}
	return encoded, nil
}
