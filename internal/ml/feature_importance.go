package ml

import (
	"fmt"
	"math"
	"sort"

	"legendary-classifier/internal/features"
)

// Importance provenance kinds
const (
	ImportanceFromModel        = "feature_importances"
	ImportanceFromCoefficients = "coefficient_magnitude"
	ImportanceUniform          = "uniform"
)

// ImportanceTable holds one normalised weight per feature. It is immutable
// once built.
type ImportanceTable struct {
	weights [features.NumFeatures]float64
	kind    string
}

// NewImportanceTable normalises raw weights to sum to 1.
func NewImportanceTable(raw []float64, kind string) (*ImportanceTable, error) {
	if len(raw) != features.NumFeatures {
		return nil, fmt.Errorf("expected %d importances, got %d", features.NumFeatures, len(raw))
	}
	var sum float64
	for i, w := range raw {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("importance for %s must be a non-negative number, got %v", features.FeatureNames[i], w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("importances sum to zero")
	}
	t := &ImportanceTable{kind: kind}
	for i, w := range raw {
		t.weights[i] = w / sum
	}
	return t, nil
}

// UniformImportance weights every feature equally.
func UniformImportance() *ImportanceTable {
	t := &ImportanceTable{kind: ImportanceUniform}
	for i := range t.weights {
		t.weights[i] = 1.0 / features.NumFeatures
	}
	return t
}

// ExtractFeatureImportance derives a table from the model: tree importances
// first, then absolute coefficients, then uniform.
func ExtractFeatureImportance(model Model) *ImportanceTable {
	if model == nil {
		return UniformImportance()
	}
	if imp, ok := model.FeatureImportances(); ok {
		if t, err := NewImportanceTable(imp, ImportanceFromModel); err == nil {
			return t
		}
	}
	if coef, ok := model.Coefficients(); ok {
		abs := make([]float64, len(coef))
		for i, c := range coef {
			abs[i] = math.Abs(c)
		}
		if t, err := NewImportanceTable(abs, ImportanceFromCoefficients); err == nil {
			return t
		}
	}
	return UniformImportance()
}

// Weight returns the weight of feature i.
func (t *ImportanceTable) Weight(i int) float64 { return t.weights[i] }

// Weights returns a copy of all weights in feature order.
func (t *ImportanceTable) Weights() []float64 {
	return append([]float64(nil), t.weights[:]...)
}

// Kind is the provenance tag.
func (t *ImportanceTable) Kind() string { return t.kind }

// FeatureImportanceItem is one ranked entry of the importance report.
type FeatureImportanceItem struct {
	Feature     string  `json:"feature"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// ImportanceReport is the global importance ranking.
type ImportanceReport struct {
	ModelType      string                  `json:"model_type"`
	ImportanceType string                  `json:"importance_type"`
	Features       []FeatureImportanceItem `json:"features"`
}

// Ranked lists features by descending weight, ties in feature order.
func (t *ImportanceTable) Ranked() []FeatureImportanceItem {
	items := make([]FeatureImportanceItem, features.NumFeatures)
	for i, name := range features.FeatureNames {
		items[i] = FeatureImportanceItem{
			Feature:     name,
			DisplayName: features.DisplayName(name),
			Importance:  t.weights[i],
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Importance > items[j].Importance
	})
	return items
}
