package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/fairlens/internal/metrics"
	"github.com/fairlens/fairlens/internal/report"
	"github.com/fairlens/fairlens/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fairlens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(t *testing.T) Run {
	t.Helper()
	var recs []schema.Record
	add := func(n int, gender schema.Category, outcome bool) {
		for i := 0; i < n; i++ {
			recs = append(recs, schema.Record{
				Gender: gender, Race: schema.Unknown, Treatment: schema.Unknown,
				Outcome: outcome, Source: "register",
			})
		}
	}
	add(20, schema.Male, true)
	add(20, schema.Male, false)
	add(18, schema.Female, true)
	add(42, schema.Female, false)

	ds := &schema.Dataset{Records: recs}
	ev, err := metrics.Evaluate(ds, metrics.Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
	})
	require.NoError(t, err)

	return Run{
		Name:        "audit",
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Dataset:     ds,
		Report:      report.Build(ds, ev),
		Diagnostics: report.NewDiagnostics(),
	}
}

func TestExportAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := testRun(t)

	require.NoError(t, s.ExportRun(ctx, run))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.Diagnostics.RunID, runs[0].RunID)
	assert.Equal(t, "audit", runs[0].Name)
	assert.Equal(t, "gender", runs[0].Dimension)
	assert.Equal(t, "male", runs[0].Privileged)
	assert.Equal(t, 100, runs[0].RecordCount)
	assert.Equal(t, run.CreatedAt, runs[0].CreatedAt)

	want, err := run.Report.Encode()
	require.NoError(t, err)
	got, err := s.ReportBytes(ctx, run.Diagnostics.RunID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExportIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := testRun(t)

	require.NoError(t, s.ExportRun(ctx, run))
	require.NoError(t, s.ExportRun(ctx, run))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	var n int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM records WHERE run_id = ?",
		run.Diagnostics.RunID).Scan(&n))
	assert.Equal(t, 100, n)
}

func TestExportDetailRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := testRun(t)
	require.NoError(t, s.ExportRun(ctx, run))

	var count, positive int
	var rate float64
	require.NoError(t, s.db.QueryRow(`
		SELECT count, positive, selection_rate FROM group_stats
		WHERE run_id = ? AND group_key = 'female'
	`, run.Diagnostics.RunID).Scan(&count, &positive, &rate))
	assert.Equal(t, 60, count)
	assert.Equal(t, 18, positive)
	assert.InDelta(t, 0.3, rate, 1e-12)

	var di float64
	var adverse bool
	require.NoError(t, s.db.QueryRow(`
		SELECT disparate_impact, adverse_impact FROM group_metrics
		WHERE run_id = ? AND group_key = 'female'
	`, run.Diagnostics.RunID).Scan(&di, &adverse))
	assert.InDelta(t, 0.6, di, 1e-12)
	assert.True(t, adverse)
}

func TestExportUndefinedRatioStoredAsNull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var recs []schema.Record
	for i := 0; i < 40; i++ {
		recs = append(recs, schema.Record{
			Gender: schema.Male, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: false, Source: "register",
		})
	}
	for i := 0; i < 40; i++ {
		recs = append(recs, schema.Record{
			Gender: schema.Female, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: i < 10, Source: "register",
		})
	}
	ds := &schema.Dataset{Records: recs}
	ev, err := metrics.Evaluate(ds, metrics.Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
	})
	require.NoError(t, err)

	run := Run{
		Name: "zero-baseline", CreatedAt: time.Now(),
		Dataset: ds, Report: report.Build(ds, ev),
		Diagnostics: report.NewDiagnostics(),
	}
	require.NoError(t, s.ExportRun(ctx, run))

	var n int
	require.NoError(t, s.db.QueryRow(`
		SELECT COUNT(*) FROM group_metrics
		WHERE run_id = ? AND group_key = 'female' AND disparate_impact IS NULL
	`, run.Diagnostics.RunID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := testRun(t)
	older.Name = "older"
	older.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testRun(t)
	newer.Name = "newer"
	newer.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.ExportRun(ctx, older))
	require.NoError(t, s.ExportRun(ctx, newer))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].Name)
	assert.Equal(t, "older", runs[1].Name)
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fairlens.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}
