package artifacts

import (
	"context"
	"fmt"
	"math"
)

// Model scores a feature matrix. For every row it returns one probability per class:
// index 0 is the good class, index 1 the bad (positive) class.
type Model interface {
	PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error)
}

// Model kinds understood by the loader
const (
	KindLogistic         = "logistic"
	KindGradientBoosting = "gradient_boosting"
	KindRandomForest     = "random_forest"
)

// ModelFile is the on-disk description of a trained classifier
type ModelFile struct {
	Kind         string             `json:"kind" yaml:"kind"`
	Name         string             `json:"name,omitempty" yaml:"name,omitempty"`
	Intercept    float64            `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients map[string]float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	BaseMargin   float64            `json:"base_margin,omitempty" yaml:"base_margin,omitempty"`
	Trees        []TreeFile         `json:"trees,omitempty" yaml:"trees,omitempty"`
}

// TreeFile is a flat node list; node 0 is the root
type TreeFile struct {
	Nodes []NodeFile `json:"nodes" yaml:"nodes"`
}

// NodeFile is either a split (Feature set) or a leaf
type NodeFile struct {
	Feature   string  `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Left      int     `json:"left,omitempty" yaml:"left,omitempty"`
	Right     int     `json:"right,omitempty" yaml:"right,omitempty"`
	Leaf      float64 `json:"leaf,omitempty" yaml:"leaf,omitempty"`
}

// Build resolves feature names against order and returns a ready model
func (m ModelFile) Build(order []string) (Model, error) {
	columns := make(map[string]int, len(order))
	for i, name := range order {
		columns[name] = i
	}

	switch m.Kind {
	case KindLogistic:
		return newLogisticModel(m, columns, len(order))
	case KindGradientBoosting, KindRandomForest:
		trees := make([]tree, len(m.Trees))
		for i, tf := range m.Trees {
			t, err := newTree(tf, columns)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = t
		}
		if len(trees) == 0 {
			return nil, fmt.Errorf("%s model has no trees", m.Kind)
		}
		return &ensembleModel{
			kind:       m.Kind,
			baseMargin: m.BaseMargin,
			trees:      trees,
			width:      len(order),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model kind %q", m.Kind)
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func checkRows(rows [][]float64, width int) error {
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, model expects %d", i, len(row), width)
		}
	}
	return nil
}

type logisticModel struct {
	intercept float64
	weights   []float64
}

func newLogisticModel(m ModelFile, columns map[string]int, width int) (*logisticModel, error) {
	weights := make([]float64, width)
	for name, w := range m.Coefficients {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("coefficient for unknown feature %q", name)
		}
		weights[col] = w
	}
	return &logisticModel{intercept: m.Intercept, weights: weights}, nil
}

func (l *logisticModel) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if err := checkRows(rows, len(l.weights)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := l.intercept
		for j, x := range row {
			z += l.weights[j] * x
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

type node struct {
	column    int
	threshold float64
	left      int
	right     int
	leaf      float64
	isLeaf    bool
}

type tree []node

func newTree(tf TreeFile, columns map[string]int) (tree, error) {
	if len(tf.Nodes) == 0 {
		return nil, fmt.Errorf("tree has no nodes")
	}
	t := make(tree, len(tf.Nodes))
	for i, n := range tf.Nodes {
		if n.Feature == "" {
			t[i] = node{leaf: n.Leaf, isLeaf: true}
			continue
		}
		col, ok := columns[n.Feature]
		if !ok {
			return nil, fmt.Errorf("node %d splits on unknown feature %q", i, n.Feature)
		}
		// children must point forward so evaluation always terminates
		if n.Left <= i || n.Right <= i || n.Left >= len(tf.Nodes) || n.Right >= len(tf.Nodes) {
			return nil, fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
		t[i] = node{column: col, threshold: n.Threshold, left: n.Left, right: n.Right}
	}
	return t, nil
}

func (t tree) eval(row []float64) float64 {
	i := 0
	for !t[i].isLeaf {
		if row[t[i].column] <= t[i].threshold {
			i = t[i].left
		} else {
			i = t[i].right
		}
	}
	return t[i].leaf
}

// ensembleModel covers boosted trees (leaves add up to a log-odds margin) and
// random forests (leaves hold P(bad), averaged across trees).
type ensembleModel struct {
	kind       string
	baseMargin float64
	trees      []tree
	width      int
}

func (e *ensembleModel) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if err := checkRows(rows, e.width); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var p float64
		switch e.kind {
		case KindGradientBoosting:
			margin := e.baseMargin
			for _, t := range e.trees {
				margin += t.eval(row)
			}
			p = sigmoid(margin)
		default:
			sum := 0.0
			for _, t := range e.trees {
				sum += t.eval(row)
			}
			p = clip(sum/float64(len(e.trees)), 0, 1)
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}
