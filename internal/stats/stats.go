// Package stats holds the order statistics shared by profiling and forest
// calibration.
package stats

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the q-quantile of values with linear interpolation
// between the closest ranks (position q*(n-1) in the sorted data). NaN for
// empty input. values is not modified.
func Quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}
	q = min(max(q, 0), 1)
	// gonum's LinInterp places p at position p*n-1; shifting p lands it on
	// q*(n-1).
	p := (q*float64(n-1) + 1) / float64(n)
	return stat.Quantile(min(p, 1), stat.LinInterp, sorted, nil)
}

// Median averages the two middle values for an even count.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}
