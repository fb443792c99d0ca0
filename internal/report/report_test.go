package report

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/fairlens/internal/metrics"
	"github.com/fairlens/fairlens/internal/schema"
)

// workedExample builds the reference dataset: male 40 records / 20
// positive, female 60 records / 18 positive, all from one source.
func workedExample() *schema.Dataset {
	ds := &schema.Dataset{}
	add := func(gender schema.Category, n, positive int) {
		for i := 0; i < n; i++ {
			ds.Records = append(ds.Records, schema.Record{
				Gender:    gender,
				Race:      schema.Unknown,
				Treatment: schema.Unknown,
				Outcome:   i < positive,
				Source:    "register",
			})
		}
	}
	add(schema.Male, 40, 20)
	add(schema.Female, 60, 18)
	return ds
}

func buildReport(t *testing.T, cfg metrics.Config) *Report {
	t.Helper()
	ds := workedExample()
	ev, err := metrics.Evaluate(ds, cfg)
	require.NoError(t, err)
	return Build(ds, ev)
}

func TestReportGolden(t *testing.T) {
	r := buildReport(t, metrics.Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
	})

	encoded, err := r.Encode()
	require.NoError(t, err)

	// The golden file is the source of truth for the canonical report
	// bytes. Regenerate with: go test ./internal/report -update
	g := goldie.New(t)
	g.Assert(t, "fairness_report", encoded)
}

func TestReportEncodeByteIdentical(t *testing.T) {
	cfg := metrics.Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
		ChiSquare:  true,
		Reweighing: true,
	}

	first, err := buildReport(t, cfg).Encode()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := buildReport(t, cfg).Encode()
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}
}

func TestReportUndefinedDIMarker(t *testing.T) {
	ds := &schema.Dataset{}
	for i := 0; i < 40; i++ {
		ds.Records = append(ds.Records, schema.Record{
			Gender: schema.Male, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: false, Source: "s",
		})
	}
	for i := 0; i < 40; i++ {
		ds.Records = append(ds.Records, schema.Record{
			Gender: schema.Female, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: i < 20, Source: "s",
		})
	}

	ev, err := metrics.Evaluate(ds, metrics.Config{
		Dimension: schema.DimGender, Privileged: "male", MinSample: 30,
	})
	require.NoError(t, err)

	encoded, err := Build(ds, ev).Encode()
	require.NoError(t, err)

	s := string(encoded)
	assert.Contains(t, s, `"undefined":{"disparate_impact":[{"group":"female","reason":"metric_undefined"}]}`)
	assert.NotContains(t, s, `"disparate_impact":{"female"`, "undefined DI must not carry a value")
}

func TestReportExcludedMarker(t *testing.T) {
	ds := workedExample()
	for i := 0; i < 3; i++ {
		ds.Records = append(ds.Records, schema.Record{
			Gender: schema.Unknown, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: true, Source: "register",
		})
	}

	ev, err := metrics.Evaluate(ds, metrics.Config{
		Dimension: schema.DimGender, Privileged: "male", MinSample: 30,
	})
	require.NoError(t, err)

	encoded, err := Build(ds, ev).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `{"count":3,"group":"unknown","reason":"insufficient_sample"}`)
}

func TestReportSummary(t *testing.T) {
	r := buildReport(t, metrics.Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
		ChiSquare:  true,
	})

	s := r.Summary()
	assert.Contains(t, s, "grouped by gender")
	assert.Contains(t, s, "female")
	assert.Contains(t, s, "DI=0.6000")
	assert.Contains(t, s, "[adverse impact]")
	assert.Contains(t, s, "chi-square")
}

func TestDiagnosticsRunIDUnique(t *testing.T) {
	a := NewDiagnostics()
	b := NewDiagnostics()
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestSummaryNoCanonicalLeak(t *testing.T) {
	// Summary is for humans; the canonical encoding must not depend
	// on it having been called.
	r := buildReport(t, metrics.Config{
		Dimension: schema.DimGender, Privileged: "male", MinSample: 30,
	})
	before, err := r.Encode()
	require.NoError(t, err)
	_ = r.Summary()
	after, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.True(t, strings.HasPrefix(string(before), `{"dataset":`))
}
