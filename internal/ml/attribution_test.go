package ml

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legendary-classifier/internal/features"
)

type stubExplainer struct {
	out      ShapOutput
	err      error
	panicMsg string
	delay    time.Duration
}

func (s stubExplainer) Kind() string { return "stub" }

func (s stubExplainer) ShapValues(ctx context.Context, _ []float64) (ShapOutput, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ShapOutput{}, ctx.Err()
		}
	}
	return s.out, s.err
}

var testStats = features.StatVector{HP: 106, Attack: 110, Defense: 90, SpAttack: 154, SpDefense: 90, Speed: 130}

func testInput() AttributionInput {
	return AttributionInput{
		Features:      testStats.Values(),
		Stats:         testStats,
		Prediction:    1,
		ProbLegendary: 0.85,
		Importance:    UniformImportance(),
	}
}

func TestAttribute_ShapOutputShapes(t *testing.T) {
	t.Parallel()

	values := []float64{0.2, -0.2, 0.05, 0.0005, -0.02, 0.12}
	negated := make([]float64, len(values))
	for i, v := range values {
		negated[i] = -v
	}

	tests := []struct {
		name string
		out  ShapOutput
	}{
		{"two class vectors use class 1", ShapOutput{PerClass: [][]float64{negated, values}}},
		{"single class vector", ShapOutput{PerClass: [][]float64{values}}},
		{"batch of one row", ShapOutput{Batch: [][]float64{values}}},
		{"plain vector", ShapOutput{Values: values}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewAttributionEngine(stubExplainer{out: tt.out}, time.Second, nil)
			got, method := engine.Attribute(context.Background(), testInput())

			assert.Equal(t, "SHAP", method)
			require.Len(t, got, features.NumFeatures)

			want := []struct {
				feature, impact, magnitude, explanation string
			}{
				{"hp", "Positive", "High", "Pushes prediction toward Legendary"},
				{"attack", "Negative", "High", "Pushes prediction toward Non-Legendary"},
				{"speed", "Positive", "High", "Pushes prediction toward Legendary"},
				{"defense", "Positive", "Medium", "Pushes prediction toward Legendary"},
				{"sp_defense", "Negative", "Low", "Pushes prediction toward Non-Legendary"},
				{"sp_attack", "Neutral", "Low", "Minimal impact on prediction"},
			}
			for i, w := range want {
				assert.Equal(t, w.feature, got[i].Feature)
				assert.Equal(t, w.impact, got[i].Impact, w.feature)
				assert.Equal(t, w.magnitude, got[i].Magnitude, w.feature)
				assert.Equal(t, w.explanation, got[i].Explanation, w.feature)
			}
			// Values are the raw stats, not the model input
			assert.Equal(t, 106.0, got[0].Value)
			assert.Equal(t, "HP", got[0].DisplayName)
		})
	}
}

func TestAttribute_FallbackPaths(t *testing.T) {
	t.Parallel()

	zeros := make([]float64, features.NumFeatures)
	withNaN := []float64{0.1, math.NaN(), 0, 0, 0, 0}

	tests := []struct {
		name          string
		explainer     Explainer
		timeout       time.Duration
		wantMethod    string
		wantShapFails int
	}{
		{
			name:       "no explainer",
			explainer:  nil,
			wantMethod: "fallback (importance-based)",
		},
		{
			name:       "all zeros",
			explainer:  stubExplainer{out: ShapOutput{PerClass: [][]float64{zeros, zeros}}},
			wantMethod: "fallback (SHAP returned zeros)",
		},
		{
			name:       "NaN value",
			explainer:  stubExplainer{out: ShapOutput{Batch: [][]float64{withNaN}}},
			wantMethod: "fallback (SHAP returned zeros)",
		},
		{
			name:          "explainer error",
			explainer:     stubExplainer{err: errors.New("kernel exploded")},
			wantMethod:    "fallback (importance-based)",
			wantShapFails: 1,
		},
		{
			name:          "explainer panic",
			explainer:     stubExplainer{panicMsg: "index out of range"},
			wantMethod:    "fallback (importance-based)",
			wantShapFails: 1,
		},
		{
			name:          "wrong number of values",
			explainer:     stubExplainer{out: ShapOutput{Values: []float64{0.1, 0.2}}},
			wantMethod:    "fallback (importance-based)",
			wantShapFails: 1,
		},
		{
			name:          "empty output",
			explainer:     stubExplainer{},
			wantMethod:    "fallback (importance-based)",
			wantShapFails: 1,
		},
		{
			name:          "timeout",
			explainer:     stubExplainer{delay: time.Second, out: ShapOutput{Values: []float64{1, 1, 1, 1, 1, 1}}},
			timeout:       20 * time.Millisecond,
			wantMethod:    "fallback (importance-based)",
			wantShapFails: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			engine := NewAttributionEngine(tt.explainer, tt.timeout, metrics)
			in := testInput()

			got, method := engine.Attribute(context.Background(), in)

			assert.Equal(t, tt.wantMethod, method)
			assert.Contains(t, method, "fallback")
			assert.Equal(t, FallbackContributions(in.Stats, in.Prediction, in.ProbLegendary, in.Importance), got)
			assert.Equal(t, tt.wantShapFails, metrics.ShapFailures())
			assert.Equal(t, 1, metrics.FallbackUse())
			assert.Equal(t, 1, metrics.MethodCount(tt.wantMethod))
		})
	}
}

func TestAttribute_NilImportanceUsesUniform(t *testing.T) {
	t.Parallel()

	engine := NewAttributionEngine(nil, 0, nil)
	in := testInput()
	in.Importance = nil

	got, method := engine.Attribute(context.Background(), in)
	assert.Equal(t, MethodFallback, method)
	assert.Equal(t, FallbackContributions(in.Stats, in.Prediction, in.ProbLegendary, UniformImportance()), got)
}

func TestAttribute_ExactlyOneContributionPerFeature(t *testing.T) {
	t.Parallel()

	engines := []*AttributionEngine{
		NewAttributionEngine(nil, 0, nil),
		NewAttributionEngine(stubExplainer{out: ShapOutput{Values: []float64{0.3, -0.1, 0.02, 0.4, -0.5, 0.01}}}, time.Second, nil),
	}
	for _, engine := range engines {
		got, _ := engine.Attribute(context.Background(), testInput())
		seen := make(map[string]bool)
		for _, c := range got {
			assert.False(t, seen[c.Feature], "duplicate %s", c.Feature)
			seen[c.Feature] = true
			assert.NotEmpty(t, c.Explanation)
		}
		assert.Len(t, seen, features.NumFeatures)
	}
}

func TestSortByMagnitude_StableTies(t *testing.T) {
	t.Parallel()

	c := []Contribution{
		{Feature: "a", Contribution: 0.05},
		{Feature: "b", Contribution: 0.2},
		{Feature: "c", Contribution: -0.2},
	}
	sortByMagnitude(c)

	assert.Equal(t, "b", c[0].Feature)
	assert.Equal(t, "c", c[1].Feature)
	assert.Equal(t, "a", c[2].Feature)
}

func TestShapLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		c         float64
		impact    string
		magnitude string
	}{
		{0.0009, "Neutral", "Low"},
		{-0.0009, "Neutral", "Low"},
		{0.001, "Positive", "Low"},
		{0.03, "Positive", "Low"},
		{-0.031, "Negative", "Medium"},
		{0.1, "Positive", "Medium"},
		{0.101, "Positive", "High"},
	}
	for _, tt := range tests {
		impact, magnitude := shapLabels(tt.c)
		assert.Equal(t, tt.impact, impact, "impact for %v", tt.c)
		assert.Equal(t, tt.magnitude, magnitude, "magnitude for %v", tt.c)
	}
}
