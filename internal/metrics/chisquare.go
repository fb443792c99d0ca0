package metrics

import (
	"math"
)

// ChiSquare is a test of independence between group membership and
// outcome over a 2xK contingency table (outcome true/false per group).
type ChiSquare struct {
	Statistic float64 `json:"statistic"`
	DF        int     `json:"degrees_of_freedom"`
	PValue    float64 `json:"p_value"`

	// Significant is PValue < 0.05: group membership and outcome are
	// not independent at the conventional level.
	Significant bool `json:"significant"`
}

// chiSquare computes the test from already-aggregated group stats.
// Returns nil when the table is degenerate (fewer than two groups, or
// an all-positive / all-negative outcome column), where the statistic
// carries no information.
func chiSquare(groups []GroupStat) *ChiSquare {
	if len(groups) < 2 {
		return nil
	}

	total, totalPos := 0, 0
	for _, g := range groups {
		total += g.Count
		totalPos += g.Positive
	}
	if totalPos == 0 || totalPos == total {
		return nil
	}

	pPos := float64(totalPos) / float64(total)
	var stat float64
	for _, g := range groups {
		expPos := float64(g.Count) * pPos
		expNeg := float64(g.Count) * (1 - pPos)
		obsPos := float64(g.Positive)
		obsNeg := float64(g.Count - g.Positive)
		stat += (obsPos - expPos) * (obsPos - expPos) / expPos
		stat += (obsNeg - expNeg) * (obsNeg - expNeg) / expNeg
	}

	df := len(groups) - 1
	return &ChiSquare{
		Statistic:   stat,
		DF:          df,
		PValue:      chiSquareSurvival(stat, df),
		Significant: chiSquareSurvival(stat, df) < 0.05,
	}
}

// chiSquareSurvival returns P(X >= x) for a chi-square distribution
// with df degrees of freedom, via the regularized upper incomplete
// gamma function Q(df/2, x/2).
func chiSquareSurvival(x float64, df int) float64 {
	if x <= 0 {
		return 1
	}
	return gammaQ(float64(df)/2, x/2)
}

// gammaQ computes the regularized upper incomplete gamma function
// Q(a, x) using the series expansion for x < a+1 and the continued
// fraction otherwise. Standard Numerical Recipes construction; both
// branches converge quickly for the small degrees of freedom seen in
// contingency tables.
func gammaQ(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return math.NaN()
	}
	if x == 0 {
		return 1
	}
	if x < a+1 {
		return 1 - gammaPSeries(a, x)
	}
	return gammaQContinuedFraction(a, x)
}

func gammaPSeries(a, x float64) float64 {
	const maxIter = 200
	const eps = 1e-14

	lg, _ := math.Lgamma(a)
	ap := a
	sum := 1.0 / a
	del := sum
	for range maxIter {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*eps {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lg)
}

func gammaQContinuedFraction(a, x float64) float64 {
	const maxIter = 200
	const eps = 1e-14
	const tiny = 1e-300

	lg, _ := math.Lgamma(a)
	b := x + 1 - a
	c := 1 / tiny
	d := 1 / b
	h := d
	for i := 1; i <= maxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = b + an/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lg) * h
}
