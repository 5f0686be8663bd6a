// Package forest implements a small decision-forest classifier with a JSON artifact format.
//
// Artifacts are produced by cmd/trainrisk and loaded by the risk classifier. A forest predicts
// the class index chosen by the majority of its trees.
package forest

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// FormatVersion is written into every artifact and checked on load.
const FormatVersion = 1

// Node is one decision node or leaf. Internal nodes send x[Feature] <= Threshold to Left.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Class     int     `json:"c,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// Tree stores its nodes flat; index 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a trained ensemble.
type Forest struct {
	Version  int      `json:"version"`
	Features []string `json:"features"`
	Classes  []string `json:"classes"`
	Trees    []Tree   `json:"trees"`
}

// Load reads and validates a JSON artifact.
func Load(path string) (*Forest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read forest")
	}
	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "decode forest %s", path)
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid forest %s", path)
	}
	return &f, nil
}

// Save writes the forest as JSON.
func (f *Forest) Save(path string) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode forest")
	}
	return errors.Wrap(os.WriteFile(path, raw, 0o644), "write forest")
}

// Validate checks structural consistency so Predict never indexes out of range.
func (f *Forest) Validate() error {
	if f.Version != FormatVersion {
		return errors.Errorf("unsupported version %d", f.Version)
	}
	if len(f.Features) == 0 {
		return errors.New("no features")
	}
	if len(f.Classes) == 0 {
		return errors.New("no classes")
	}
	if len(f.Trees) == 0 {
		return errors.New("no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return errors.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				if n.Class < 0 || n.Class >= len(f.Classes) {
					return errors.Errorf("tree %d node %d: class %d out of range", ti, ni, n.Class)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(f.Features) {
				return errors.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			// children always follow their parent, which also rules out cycles
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return errors.Errorf("tree %d node %d: bad child index", ti, ni)
			}
		}
	}
	return nil
}

// Predict returns the majority class index for x. Ties go to the lower index.
func (f *Forest) Predict(x []float64) (int, error) {
	if len(x) != len(f.Features) {
		return 0, errors.Errorf("feature shape mismatch: got %d values, want %d", len(x), len(f.Features))
	}
	votes := make([]int, len(f.Classes))
	for i := range f.Trees {
		votes[f.Trees[i].predict(x)]++
	}
	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best, nil
}

func (t *Tree) predict(x []float64) int {
	n := &t.Nodes[0]
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Class
}

// Accuracy returns the share of rows whose prediction matches y.
func (f *Forest) Accuracy(x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	hit := 0
	for i := range x {
		if c, err := f.Predict(x[i]); err == nil && c == y[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(x))
}
