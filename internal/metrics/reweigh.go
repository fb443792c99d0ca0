package metrics

import (
	"sort"

	"github.com/fairlens/fairlens/internal/schema"
)

// Reweighing holds instance weights that would equalize outcome rates
// across groups, plus the fairness metrics recomputed under those
// weights. It is a what-if analysis: the dataset itself is never
// reweighted or mutated.
//
// Weights follow the standard preprocessing construction:
// w(g, y) = P(g) * P(y) / P(g, y). Cells with no records get no weight
// entry.
type Reweighing struct {
	// Weights maps group key -> outcome ("positive"/"negative") ->
	// instance weight.
	Weights map[string]map[string]float64 `json:"weights"`

	// After holds weighted selection rates and the recomputed
	// Disparate Impact / parity difference per comparison group.
	After []GroupMetrics `json:"after"`
}

func reweigh(ds *schema.Dataset, dim schema.Dimension, privileged string, stats map[string]GroupStat) *Reweighing {
	total := float64(ds.Len())
	totalPos := 0
	for _, s := range stats {
		totalPos += s.Positive
	}
	pPos := float64(totalPos) / total
	pNeg := 1 - pPos

	rw := &Reweighing{Weights: make(map[string]map[string]float64)}

	for key, s := range stats {
		pGroup := float64(s.Count) / total
		cells := make(map[string]float64)
		if s.Positive > 0 {
			pCell := float64(s.Positive) / total
			cells["positive"] = pGroup * pPos / pCell
		}
		if s.Count-s.Positive > 0 {
			pCell := float64(s.Count-s.Positive) / total
			cells["negative"] = pGroup * pNeg / pCell
		}
		rw.Weights[key] = cells
	}

	// Weighted selection rate per group: sum of positive weights over
	// total weight. With the exact construction above every group's
	// weighted rate lands on P(y=1), so post-reweighing disparity
	// collapses; a group missing a cell keeps a residual gap.
	weightedRate := func(s GroupStat) float64 {
		cells := rw.Weights[s.Key]
		pos := cells["positive"] * float64(s.Positive)
		neg := cells["negative"] * float64(s.Count-s.Positive)
		if pos+neg == 0 {
			return 0
		}
		return pos / (pos + neg)
	}

	privStat, ok := stats[privileged]
	if !ok {
		return rw
	}
	privRate := weightedRate(privStat)

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == privileged {
			continue
		}
		gm := GroupMetrics{
			Group:            k,
			ParityDifference: weightedRate(stats[k]) - privRate,
		}
		if privRate > 0 {
			gm.DisparateImpact = weightedRate(stats[k]) / privRate
			gm.DIDefined = true
			gm.AdverseImpact = gm.DisparateImpact < adverseImpactThreshold
		}
		if abs(gm.ParityDifference) > parityGapThreshold {
			gm.HighDisparity = true
		}
		rw.After = append(rw.After, gm)
	}

	return rw
}
