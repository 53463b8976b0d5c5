// Package iforest implements an isolation forest: an ensemble of randomized
// partitioning trees in which outliers are isolated in fewer splits than
// inliers.
package iforest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"loginguard/internal/stats"
)

const eulerGamma = 0.5772156649

type Config struct {
	Trees         int     `json:"trees"`
	MaxSamples    int     `json:"max_samples"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.10,
		Seed:          42,
	}
}

func (c Config) validate() error {
	if c.Trees <= 0 {
		return errors.New("iforest: trees must be > 0")
	}
	if c.MaxSamples <= 0 {
		return errors.New("iforest: max_samples must be > 0")
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("iforest: contamination must be in (0, 0.5], got %v", c.Contamination)
	}
	return nil
}

// Forest is a fitted ensemble. It is read-only after Fit and safe for
// concurrent scoring.
type Forest struct {
	Trees         []Tree  `json:"trees"`
	SampleSize    int     `json:"sample_size"`
	Features      int     `json:"features"`
	Offset        float64 `json:"offset"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
}

// Fit grows cfg.Trees trees over data. Per-tree seeds are drawn from cfg.Seed
// before any tree is grown, so the result does not depend on scheduling.
func Fit(ctx context.Context, data [][]float64, cfg Config) (*Forest, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("iforest: no samples")
	}
	width := len(data[0])
	if width == 0 {
		return nil, errors.New("iforest: samples have no features")
	}
	for i, row := range data {
		if len(row) != width {
			return nil, fmt.Errorf("iforest: sample %d has %d features, want %d", i, len(row), width)
		}
	}

	psi := cfg.MaxSamples
	if psi > len(data) {
		psi = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]Tree, cfg.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := rng.Perm(len(data))[:psi]
			b := &builder{data: data, width: width, maxDepth: maxDepth, rng: rng}
			b.grow(sample, 0)
			trees[i] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := &Forest{
		Trees:         trees,
		SampleSize:    psi,
		Features:      width,
		Contamination: cfg.Contamination,
		Seed:          cfg.Seed,
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = f.ScoreSamples(row)
	}
	f.Offset = stats.Quantile(scores, cfg.Contamination)
	return f, nil
}

// ScoreSamples returns the opposite of the classic anomaly score, in [-1, 0).
// Lower is more anomalous.
func (f *Forest) ScoreSamples(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var total float64
	for i := range f.Trees {
		total += f.Trees[i].pathLength(x)
	}
	mean := total / float64(len(f.Trees))
	norm := averagePathLength(f.SampleSize)
	if norm == 0 {
		norm = 1
	}
	return -math.Pow(2, -mean/norm)
}

// Decision shifts ScoreSamples by the contamination offset: negative values
// are outliers.
func (f *Forest) Decision(x []float64) float64 {
	return f.ScoreSamples(x) - f.Offset
}

func (f *Forest) IsOutlier(x []float64) bool {
	return f.Decision(x) < 0
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
