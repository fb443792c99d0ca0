// Package metrics computes group-fairness statistics from a merged
// dataset: selection rates, Disparate Impact, Demographic Parity
// difference, a chi-square independence test, and reweighing weights.
//
// The evaluator is a pure function of its input: it never mutates the
// dataset, and identical inputs produce identical output, including
// slice ordering.
package metrics

import (
	"fmt"
	"sort"

	"github.com/fairlens/fairlens/internal/schema"
)

// Exclusion reasons. Excluded groups appear in the report with an
// explicit marker; a missing group is never a silent omission.
const (
	// ReasonInsufficientSample marks a group below the minimum sample
	// size. Small-sample fairness ratios are statistically unreliable
	// and must not be presented as equivalent to well-sampled ones.
	ReasonInsufficientSample = "insufficient_sample"

	// ReasonMetricUndefined marks a Disparate Impact value whose
	// privileged-group denominator is zero.
	ReasonMetricUndefined = "metric_undefined"
)

// DefaultMinSample is the minimum group size used when the job does
// not configure one.
const DefaultMinSample = 30

// Thresholds from the four-fifths rule and its parity counterpart.
const (
	adverseImpactThreshold = 0.8
	parityGapThreshold     = 0.2
)

// Config selects the grouping axis and reference group.
type Config struct {
	Dimension  schema.Dimension
	Privileged string // group key designated as the comparison baseline
	MinSample  int    // groups below this are excluded with a marker; 0 means DefaultMinSample

	// ChiSquare and Reweighing enable the optional analysis blocks.
	ChiSquare  bool
	Reweighing bool
}

// GroupStat is the per-group aggregate. Count is always > 0:
// zero-count groups are dropped, never emitted with a 0/0 rate.
type GroupStat struct {
	Key      string  `json:"key"`
	Count    int     `json:"count"`
	Positive int     `json:"positive"`
	Rate     float64 `json:"selection_rate"`
}

// GroupMetrics compares one group against the privileged group.
type GroupMetrics struct {
	Group string

	// DisparateImpact = rate(group) / rate(privileged). Valid only
	// when DIDefined; undefined when the privileged rate is zero.
	DisparateImpact float64
	DIDefined       bool

	// ParityDifference = rate(group) - rate(privileged). Always
	// defined for an included group.
	ParityDifference float64

	// AdverseImpact flags DI below the four-fifths threshold;
	// HighDisparity flags |ParityDifference| above 0.2.
	AdverseImpact bool
	HighDisparity bool
}

// Exclusion is a group left out of the metric comparison, with the
// reason and the sample size that caused it.
type Exclusion struct {
	Group  string `json:"group"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Evaluation is the immutable result of one evaluator run.
type Evaluation struct {
	Dimension  schema.Dimension
	Privileged string
	MinSample  int

	// Groups holds every nonzero group sorted by key, privileged
	// included, regardless of sample size.
	Groups []GroupStat

	// Metrics holds the comparison for each included non-privileged
	// group, sorted by group key.
	Metrics []GroupMetrics

	// Excluded lists groups below the sample threshold.
	Excluded []Exclusion

	ChiSquare  *ChiSquare
	Reweighing *Reweighing
}

// Evaluate computes fairness metrics for the dataset along the
// configured dimension. It fails only when the configuration is
// unusable: an invalid dimension, an empty dataset, or a privileged
// group absent or below the minimum sample, since every ratio would
// inherit its noise.
func Evaluate(ds *schema.Dataset, cfg Config) (*Evaluation, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("evaluate: dataset is empty")
	}
	valid := false
	for _, d := range schema.ValidDimensions {
		if cfg.Dimension == d {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("evaluate: invalid dimension %q", cfg.Dimension)
	}
	if cfg.Privileged == "" {
		return nil, fmt.Errorf("evaluate: privileged group is required")
	}
	minSample := cfg.MinSample
	if minSample <= 0 {
		minSample = DefaultMinSample
	}

	stats := groupStats(ds, cfg.Dimension)
	priv, ok := stats[cfg.Privileged]
	if !ok {
		return nil, fmt.Errorf("evaluate: privileged group %q has no records along %s", cfg.Privileged, cfg.Dimension)
	}
	if priv.Count < minSample {
		// An undersized baseline would anchor every ratio; that is a
		// configuration problem, not a finding about the data.
		return nil, fmt.Errorf("evaluate: privileged group %q has %d records, below the minimum sample of %d",
			cfg.Privileged, priv.Count, minSample)
	}

	ev := &Evaluation{
		Dimension:  cfg.Dimension,
		Privileged: cfg.Privileged,
		MinSample:  minSample,
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		ev.Groups = append(ev.Groups, stats[k])
	}

	for _, k := range keys {
		if k == cfg.Privileged {
			// The privileged group is the baseline, not a comparison.
			continue
		}
		g := stats[k]
		if g.Count < minSample {
			ev.Excluded = append(ev.Excluded, Exclusion{
				Group:  k,
				Reason: ReasonInsufficientSample,
				Count:  g.Count,
			})
			continue
		}

		gm := GroupMetrics{
			Group:            k,
			ParityDifference: g.Rate - priv.Rate,
		}
		if priv.Rate > 0 {
			gm.DisparateImpact = g.Rate / priv.Rate
			gm.DIDefined = true
			gm.AdverseImpact = gm.DisparateImpact < adverseImpactThreshold
		}
		if abs(gm.ParityDifference) > parityGapThreshold {
			gm.HighDisparity = true
		}
		ev.Metrics = append(ev.Metrics, gm)
	}

	if cfg.ChiSquare {
		ev.ChiSquare = chiSquare(ev.Groups)
	}
	if cfg.Reweighing {
		ev.Reweighing = reweigh(ds, cfg.Dimension, cfg.Privileged, stats)
	}

	return ev, nil
}

// DIUndefined reports whether Disparate Impact is undefined for every
// comparison group because the privileged selection rate is zero.
func (e *Evaluation) DIUndefined() bool {
	for _, g := range e.Groups {
		if g.Key == e.Privileged {
			return g.Rate == 0
		}
	}
	return false
}

func groupStats(ds *schema.Dataset, dim schema.Dimension) map[string]GroupStat {
	stats := make(map[string]GroupStat)
	for _, r := range ds.Records {
		key := dim.Key(r)
		s := stats[key]
		s.Key = key
		s.Count++
		if r.Outcome {
			s.Positive++
		}
		stats[key] = s
	}
	for k, s := range stats {
		s.Rate = float64(s.Positive) / float64(s.Count)
		stats[k] = s
	}
	return stats
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
