package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapping = `
source: {
	register: {
		format:    "csv"
		id_column: "id"
		gender: {
			column: "gender"
			values: {
				"m": "male"
				"f": "female"
			}
		}
		outcome: {
			column: "callback"
			truthy: ["1", "yes"]
		}
	}
	survey: {
		format: "csv"
		gender: {
			column: "sex"
			values: {
				"man":   "male"
				"woman": "female"
			}
		}
		outcome: {
			column: "hired"
			truthy: ["y"]
		}
	}
}
`

const registerCSV = `id,gender,callback
a1,m,1
a2,m,0
a3,f,1
a4,f,0
a5,f,0
a1,m,0
`

const surveyCSV = `sex,hired
man,y
woman,n
woman,n
man,n
`

func writeJobTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "mappings"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mappings", "sources.cue"), []byte(testMapping), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "register.csv"), []byte(registerCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "survey.csv"), []byte(surveyCSV), 0o644))

	job := `
name: hiring-audit
mappings: mappings
sources:
  - name: register
    path: register.csv
  - name: survey
    path: survey.csv
metrics:
  dimension: gender
  privileged: male
  min_sample: 1
`
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(job), 0o644))
	return path
}

func TestLoadJobResolvesRelativePaths(t *testing.T) {
	path := writeJobTree(t)
	job, err := LoadJob(path)
	require.NoError(t, err)

	base := filepath.Dir(path)
	assert.Equal(t, filepath.Join(base, "mappings"), job.Mappings)
	require.Len(t, job.Sources, 2)
	assert.Equal(t, filepath.Join(base, "register.csv"), job.Sources[0].Path)
	assert.Equal(t, "hiring-audit", job.Name)
	assert.Equal(t, 1, job.Metrics.MinSample)
}

func TestLoadJobValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		yaml string
	}{
		{"no sources", "mappings: m\nmetrics: {dimension: gender, privileged: male}\n"},
		{"no mappings", "sources: [{name: a, path: a.csv}]\nmetrics: {dimension: gender, privileged: male}\n"},
		{"duplicate source", "mappings: m\nsources: [{name: a, path: a.csv}, {name: a, path: b.csv}]\nmetrics: {dimension: gender, privileged: male}\n"},
		{"bad dimension", "mappings: m\nsources: [{name: a, path: a.csv}]\nmetrics: {dimension: age, privileged: male}\n"},
		{"no privileged", "mappings: m\nsources: [{name: a, path: a.csv}]\nmetrics: {dimension: gender}\n"},
		{"negative min_sample", "mappings: m\nsources: [{name: a, path: a.csv}]\nmetrics: {dimension: gender, privileged: male, min_sample: -1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "job.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := LoadJob(path)
			assert.Error(t, err)
		})
	}
}

func TestRunEndToEnd(t *testing.T) {
	job, err := LoadJob(writeJobTree(t))
	require.NoError(t, err)

	res, err := Run(context.Background(), job)
	require.NoError(t, err)

	// register has a duplicate id (a1), so 5 survive of 6; survey has
	// no ids and contributes all 4.
	assert.Equal(t, 9, res.Dataset.Len())
	require.Len(t, res.Diagnostics.MergeWarnings, 1)

	// male: a1=1, a2=0, man=1, man=0 -> 2/4; female: a3=1, a4=0,
	// a5=0, woman=0, woman=0 -> 1/5.
	ev := res.Report.Evaluation
	require.Len(t, ev.Groups, 2)
	female := ev.Metrics[0]
	require.Equal(t, "female", female.Group)
	assert.InDelta(t, 0.4, female.DisparateImpact, 1e-12)
	assert.InDelta(t, -0.3, female.ParityDifference, 1e-12)
	assert.True(t, female.AdverseImpact)
	assert.True(t, female.HighDisparity)

	assert.NotEmpty(t, res.Diagnostics.RunID)
	require.Len(t, res.Diagnostics.Sources, 2)
}

func TestRunDeterministicAcrossRuns(t *testing.T) {
	job, err := LoadJob(writeJobTree(t))
	require.NoError(t, err)

	a, err := Run(context.Background(), job)
	require.NoError(t, err)
	b, err := Run(context.Background(), job)
	require.NoError(t, err)

	ea, err := a.Report.Encode()
	require.NoError(t, err)
	eb, err := b.Report.Encode()
	require.NoError(t, err)
	assert.Equal(t, ea, eb)

	// Run tokens are per-run, never part of the report.
	assert.NotEqual(t, a.Diagnostics.RunID, b.Diagnostics.RunID)
	assert.NotContains(t, string(ea), a.Diagnostics.RunID)
}

func TestRunSkipsUnreadableSource(t *testing.T) {
	path := writeJobTree(t)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(path), "survey.csv")))

	job, err := LoadJob(path)
	require.NoError(t, err)

	res, err := Run(context.Background(), job)
	require.NoError(t, err)

	// The readable source still yields a result.
	assert.Equal(t, 5, res.Dataset.Len())
	var failed bool
	for _, s := range res.Diagnostics.Sources {
		if s.Source == "survey" && s.LoadFailure != "" {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestRunFailsWhenNothingLoads(t *testing.T) {
	path := writeJobTree(t)
	dir := filepath.Dir(path)
	require.NoError(t, os.Remove(filepath.Join(dir, "register.csv")))
	require.NoError(t, os.Remove(filepath.Join(dir, "survey.csv")))

	job, err := LoadJob(path)
	require.NoError(t, err)

	_, err = Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source produced any record")
}

func TestRunFailsOnMissingMapping(t *testing.T) {
	path := writeJobTree(t)
	dir := filepath.Dir(path)
	csv := filepath.Join(dir, "extra.csv")
	require.NoError(t, os.WriteFile(csv, []byte("x\n1\n"), 0o644))

	job, err := LoadJob(path)
	require.NoError(t, err)
	job.Sources = append(job.Sources, SourceRef{Name: "extra", Path: csv})

	_, err = Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "extra" has no mapping`)
}

func TestRunHonorsCancellation(t *testing.T) {
	job, err := LoadJob(writeJobTree(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
}
