package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/fairlens/internal/schema"
)

func TestReweighingWeights(t *testing.T) {
	ev, err := Evaluate(hiringDataset(), Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
		Reweighing: true,
	})
	require.NoError(t, err)
	require.NotNil(t, ev.Reweighing)

	// w(g, y) = P(g) * P(y) / P(g, y) with overall positive rate 0.38:
	//   male positive:   0.4 * 0.38 / 0.20 = 0.76
	//   male negative:   0.4 * 0.62 / 0.20 = 1.24
	//   female positive: 0.6 * 0.38 / 0.18 = 1.2666...
	//   female negative: 0.6 * 0.62 / 0.42 = 0.8857...
	w := ev.Reweighing.Weights
	assert.InDelta(t, 0.76, w["male"]["positive"], 1e-12)
	assert.InDelta(t, 1.24, w["male"]["negative"], 1e-12)
	assert.InDelta(t, 0.38/0.3, w["female"]["positive"], 1e-12)
	assert.InDelta(t, 0.62/0.7, w["female"]["negative"], 1e-12)
}

func TestReweighingEqualizesRates(t *testing.T) {
	ev, err := Evaluate(hiringDataset(), Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
		Reweighing: true,
	})
	require.NoError(t, err)

	// With fully populated cells the weighted selection rate of every
	// group lands on the overall positive rate, so the post-reweighing
	// disparity collapses.
	require.Len(t, ev.Reweighing.After, 1)
	after := ev.Reweighing.After[0]
	assert.Equal(t, "female", after.Group)
	require.True(t, after.DIDefined)
	assert.InDelta(t, 1.0, after.DisparateImpact, 1e-9)
	assert.InDelta(t, 0.0, after.ParityDifference, 1e-9)
	assert.False(t, after.AdverseImpact)
	assert.False(t, after.HighDisparity)
}

func TestReweighingMissingCell(t *testing.T) {
	// A group with no positive outcomes has no positive-cell weight.
	ds := &schema.Dataset{}
	for i := 0; i < 50; i++ {
		ds.Records = append(ds.Records, schema.Record{
			Gender: schema.Male, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: i < 25, Source: "s",
		})
	}
	for i := 0; i < 50; i++ {
		ds.Records = append(ds.Records, schema.Record{
			Gender: schema.Female, Race: schema.Unknown, Treatment: schema.Unknown,
			Outcome: false, Source: "s",
		})
	}

	ev, err := Evaluate(ds, Config{
		Dimension:  schema.DimGender,
		Privileged: "male",
		MinSample:  30,
		Reweighing: true,
	})
	require.NoError(t, err)

	_, hasPos := ev.Reweighing.Weights["female"]["positive"]
	assert.False(t, hasPos)
	_, hasNeg := ev.Reweighing.Weights["female"]["negative"]
	assert.True(t, hasNeg)
}
