package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantileInterpolatesBetweenRanks(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	cases := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.1, 1.4},
		{0.25, 2},
		{0.5, 3},
		{0.9, 4.6},
		{1, 5},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Quantile(values, tc.q), 1e-12, "q=%v", tc.q)
	}
	assert.Equal(t, []float64{4, 1, 3, 2, 5}, values, "input left unsorted")
}

func TestQuantileEdgeCases(t *testing.T) {
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.3))
	assert.InDelta(t, 10.0, Quantile([]float64{10, 20}, -1), 1e-12)
	assert.InDelta(t, 20.0, Quantile([]float64{10, 20}, 2), 1e-12)
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 2.0, Median([]float64{3, 1, 2}), 1e-12)
	assert.InDelta(t, 2.5, Median([]float64{4, 1, 3, 2}), 1e-12)
	assert.InDelta(t, -122.4, Median([]float64{-122.5, -122.4, -74.0}), 1e-12)
}
