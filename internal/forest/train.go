package forest

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"
)

// Params controls training.
type Params struct {
	Trees       int    // ensemble size
	MaxDepth    int    // 0 means unlimited
	MinLeaf     int    // minimum rows per leaf
	MaxFeatures int    // features tried per split, 0 means sqrt(n)
	Balanced    bool   // weight classes inversely to their frequency
	Seed        uint64 // bootstrap and feature sampling seed
}

// DefaultParams mirrors the settings the risk model has always been trained with.
func DefaultParams() Params {
	return Params{
		Trees:    100,
		MaxDepth: 16,
		MinLeaf:  1,
		Balanced: true,
		Seed:     42,
	}
}

// Train fits a forest on rows x with class indices y. Each tree sees a bootstrap sample.
func Train(x [][]float64, y []int, features, classes []string, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, errors.Errorf("%d rows but %d labels", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(features) {
			return nil, errors.Errorf("row %d has %d values, want %d", i, len(row), len(features))
		}
		if y[i] < 0 || y[i] >= len(classes) {
			return nil, errors.Errorf("row %d has label %d outside %d classes", i, y[i], len(classes))
		}
	}
	if p.Trees <= 0 {
		p.Trees = 1
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > len(features) {
		p.MaxFeatures = max(1, int(math.Sqrt(float64(len(features)))))
	}

	weights := make([]float64, len(classes))
	for i := range weights {
		weights[i] = 1
	}
	if p.Balanced {
		counts := make([]int, len(classes))
		for _, c := range y {
			counts[c]++
		}
		for c, n := range counts {
			if n > 0 {
				weights[c] = float64(len(y)) / float64(len(classes)*n)
			}
		}
	}

	f := &Forest{
		Version:  FormatVersion,
		Features: append([]string(nil), features...),
		Classes:  append([]string(nil), classes...),
		Trees:    make([]Tree, 0, p.Trees),
	}
	for t := 0; t < p.Trees; t++ {
		b := &builder{
			x:       x,
			y:       y,
			weights: weights,
			classes: len(classes),
			p:       p,
			rng:     rand.New(rand.NewPCG(p.Seed, uint64(t))),
		}
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = b.rng.IntN(len(x))
		}
		b.grow(sample, 0)
		f.Trees = append(f.Trees, Tree{Nodes: b.nodes})
	}
	return f, nil
}

type builder struct {
	x       [][]float64
	y       []int
	weights []float64
	classes int
	p       Params
	rng     *rand.Rand
	nodes   []Node
}

func (b *builder) grow(idx []int, depth int) int {
	counts := b.count(idx)
	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Class: argmax(counts)})

	if b.p.MaxDepth > 0 && depth >= b.p.MaxDepth {
		return pos
	}
	if len(idx) < 2*b.p.MinLeaf || gini(counts) == 0 {
		return pos
	}
	feature, threshold, ok := b.bestSplit(idx, gini(counts))
	if !ok {
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	// b.nodes may have been reallocated while growing the children
	b.nodes[pos] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return pos
}

func (b *builder) bestSplit(idx []int, parent float64) (int, float64, bool) {
	var (
		bestFeature   int
		bestThreshold float64
		bestScore     = parent - 1e-12
		found         bool
	)
	order := b.rng.Perm(len(b.x[0]))
	for k, feature := range order {
		if k >= b.p.MaxFeatures && found {
			break
		}
		threshold, score, ok := b.splitOn(idx, feature)
		if ok && score < bestScore {
			bestFeature, bestThreshold, bestScore, found = feature, threshold, score, true
		}
	}
	return bestFeature, bestThreshold, found
}

// splitOn finds the threshold on one feature minimising weighted gini impurity.
func (b *builder) splitOn(idx []int, feature int) (float64, float64, bool) {
	sorted := append([]int(nil), idx...)
	sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][feature] < b.x[sorted[j]][feature] })

	left := make([]float64, b.classes)
	right := b.count(sorted)
	var (
		bestScore     = math.Inf(1)
		bestThreshold float64
		found         bool
	)
	for i := 0; i < len(sorted)-1; i++ {
		c := b.y[sorted[i]]
		left[c] += b.weights[c]
		right[c] -= b.weights[c]

		cur, next := b.x[sorted[i]][feature], b.x[sorted[i+1]][feature]
		if cur == next {
			continue
		}
		if i+1 < b.p.MinLeaf || len(sorted)-i-1 < b.p.MinLeaf {
			continue
		}
		wl, wr := sum(left), sum(right)
		score := (wl*gini(left) + wr*gini(right)) / (wl + wr)
		if score < bestScore {
			bestScore, bestThreshold, found = score, cur+(next-cur)/2, true
		}
	}
	return bestThreshold, bestScore, found
}

func (b *builder) count(idx []int) []float64 {
	counts := make([]float64, b.classes)
	for _, i := range idx {
		counts[b.y[i]] += b.weights[b.y[i]]
	}
	return counts
}

func gini(counts []float64) float64 {
	total := sum(counts)
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
