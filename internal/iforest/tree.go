package iforest

import (
	"math/rand"
)

// Node is one tree node. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int32   `json:"l"`
	Right     int32   `json:"r"`
	Size      int     `json:"n"`
}

// Tree stores its nodes flat with the root at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) pathLength(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	depth := 0
	idx := int32(0)
	for {
		n := &t.Nodes[idx]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

type builder struct {
	data     [][]float64
	width    int
	maxDepth int
	rng      *rand.Rand
	nodes    []Node
}

func (b *builder) grow(rows []int, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: len(rows)})
	if len(rows) <= 1 || depth >= b.maxDepth {
		return idx
	}
	feature, lo, hi, ok := b.pickFeature(rows)
	if !ok {
		return idx
	}
	// split in [lo, hi): values <= split go left, hi always goes right.
	split := lo + b.rng.Float64()*(hi-lo)
	left := make([]int, 0, len(rows)/2)
	right := make([]int, 0, len(rows)/2)
	for _, r := range rows {
		if b.data[r][feature] <= split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = split
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// pickFeature draws uniformly among the features that vary within rows.
func (b *builder) pickFeature(rows []int) (int, float64, float64, bool) {
	type span struct {
		feature int
		lo, hi  float64
	}
	candidates := make([]span, 0, b.width)
	for f := 0; f < b.width; f++ {
		lo := b.data[rows[0]][f]
		hi := lo
		for _, r := range rows[1:] {
			v := b.data[r][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			candidates = append(candidates, span{feature: f, lo: lo, hi: hi})
		}
	}
	if len(candidates) == 0 {
		return 0, 0, 0, false
	}
	c := candidates[b.rng.Intn(len(candidates))]
	return c.feature, c.lo, c.hi, true
}
