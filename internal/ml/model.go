package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"legendary-classifier/internal/features"
)

// Model type names reported to clients
const (
	TypeLogisticRegression = "LogisticRegression"
	TypeLinearSVC          = "LinearSVC"
	TypeRandomForest       = "RandomForestClassifier"
)

func checkInput(x []float64) error {
	if len(x) != features.NumFeatures {
		return fmt.Errorf("expected %d features, got %d", features.NumFeatures, len(x))
	}
	return nil
}

func linearDecision(w []float64, b float64, x []float64) (float64, error) {
	if err := checkInput(x); err != nil {
		return 0, err
	}
	if len(w) != len(x) {
		return 0, fmt.Errorf("model has %d weights for %d features", len(w), len(x))
	}
	return floats.Dot(w, x) + b, nil
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// LogisticRegression is a binary logistic model over scaled stats.
type LogisticRegression struct {
	Weights   []float64
	Intercept float64
}

func (m *LogisticRegression) Type() string { return TypeLogisticRegression }

func (m *LogisticRegression) decision(x []float64) (float64, error) {
	return linearDecision(m.Weights, m.Intercept, x)
}

func (m *LogisticRegression) Predict(x []float64) (int, error) {
	d, err := m.decision(x)
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m *LogisticRegression) PredictProba(x []float64) ([]float64, bool, error) {
	d, err := m.decision(x)
	if err != nil {
		return nil, true, err
	}
	p := sigmoid(d)
	return []float64{1 - p, p}, true, nil
}

func (m *LogisticRegression) FeatureImportances() ([]float64, bool) { return nil, false }

func (m *LogisticRegression) Coefficients() ([]float64, bool) {
	return append([]float64(nil), m.Weights...), true
}

// LinearSVC is a linear max-margin classifier. It has no probability output.
type LinearSVC struct {
	Weights   []float64
	Intercept float64
}

func (m *LinearSVC) Type() string { return TypeLinearSVC }

func (m *LinearSVC) Predict(x []float64) (int, error) {
	d, err := linearDecision(m.Weights, m.Intercept, x)
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m *LinearSVC) PredictProba([]float64) ([]float64, bool, error) { return nil, false, nil }

func (m *LinearSVC) FeatureImportances() ([]float64, bool) { return nil, false }

func (m *LinearSVC) Coefficients() ([]float64, bool) {
	return append([]float64(nil), m.Weights...), true
}

// TreeNode is one node of a fitted decision tree. Leaves have Left == -1.
// Cover is the number of training samples that reached the node.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Cover     float64   `json:"cover"`
	Value     []float64 `json:"value,omitempty"`
}

func (n TreeNode) isLeaf() bool { return n.Left < 0 }

// prob is P(class 1) at a leaf.
func (n TreeNode) prob() float64 {
	if len(n.Value) < 2 {
		return 0
	}
	total := n.Value[0] + n.Value[1]
	if total <= 0 {
		return 0
	}
	return n.Value[1] / total
}

type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t Tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.isLeaf() {
			if len(n.Value) != 2 {
				return fmt.Errorf("leaf %d must carry 2 class values, got %d", i, len(n.Value))
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= features.NumFeatures {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
		// Children must come after their parent so walks always terminate
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, n.Left, n.Right)
		}
		if n.Cover < 0 {
			return fmt.Errorf("node %d has negative cover", i)
		}
	}
	return nil
}

func (t Tree) predict(x []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.isLeaf() {
			return n.prob()
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// expected is E[f(x) | x_S] where S is the set bits of mask. Splits on
// features outside S follow both branches weighted by training cover.
func (t Tree) expected(x []float64, mask uint, idx int) float64 {
	n := t.Nodes[idx]
	if n.isLeaf() {
		return n.prob()
	}
	if mask&(1<<uint(n.Feature)) != 0 {
		if x[n.Feature] <= n.Threshold {
			return t.expected(x, mask, n.Left)
		}
		return t.expected(x, mask, n.Right)
	}
	lc, rc := t.Nodes[n.Left].Cover, t.Nodes[n.Right].Cover
	if lc+rc <= 0 {
		return 0.5*t.expected(x, mask, n.Left) + 0.5*t.expected(x, mask, n.Right)
	}
	return (lc*t.expected(x, mask, n.Left) + rc*t.expected(x, mask, n.Right)) / (lc + rc)
}

// RandomForest averages the leaf class distributions of its trees.
type RandomForest struct {
	Forest      []Tree
	Importances []float64
}

func (m *RandomForest) Type() string { return TypeRandomForest }

func (m *RandomForest) Trees() []Tree { return m.Forest }

func (m *RandomForest) proba(x []float64) (float64, error) {
	if err := checkInput(x); err != nil {
		return 0, err
	}
	if len(m.Forest) == 0 {
		return 0, fmt.Errorf("forest has no trees")
	}
	var sum float64
	for _, t := range m.Forest {
		sum += t.predict(x)
	}
	return sum / float64(len(m.Forest)), nil
}

func (m *RandomForest) Predict(x []float64) (int, error) {
	p, err := m.proba(x)
	if err != nil {
		return 0, err
	}
	// argmax, ties go to class 0
	if p > 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (m *RandomForest) PredictProba(x []float64) ([]float64, bool, error) {
	p, err := m.proba(x)
	if err != nil {
		return nil, true, err
	}
	return []float64{1 - p, p}, true, nil
}

func (m *RandomForest) FeatureImportances() ([]float64, bool) {
	if len(m.Importances) != features.NumFeatures {
		return nil, false
	}
	return append([]float64(nil), m.Importances...), true
}

func (m *RandomForest) Coefficients() ([]float64, bool) { return nil, false }

// treeEnsemble is implemented by models the tree explainer can walk.
type treeEnsemble interface {
	Model
	Trees() []Tree
}
