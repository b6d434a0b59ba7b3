package ml

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/features"
)

// Explainer kinds
const (
	KindTreeExplainer   = "TreeExplainer"
	KindKernelExplainer = "KernelExplainer"
)

// maxBackgroundRows bounds kernel explainer cost: every coalition evaluates
// the model once per background row.
const maxBackgroundRows = 100

// DefaultBackground is used when no background sample is on disk. Rows are
// raw stats, from weak through strong legendary.
var DefaultBackground = [][]float64{
	{45, 49, 49, 65, 65, 45},
	{65, 75, 65, 75, 65, 65},
	{85, 95, 85, 95, 85, 85},
	{100, 115, 95, 115, 95, 95},
	{120, 134, 110, 131, 110, 100},
}

var errEmptyShapOutput = errors.New("explainer returned no values")

// ShapOutput carries attribution values in whichever shape the explainer
// produces: one vector per class, a batch of one row, or a plain vector.
type ShapOutput struct {
	PerClass [][]float64
	Batch    [][]float64
	Values   []float64
}

// legendaryValues selects the class 1 attribution. With two class vectors
// the second one is assumed to be class 1.
func (o ShapOutput) legendaryValues() ([]float64, error) {
	switch {
	case len(o.PerClass) == 2:
		return o.PerClass[1], nil
	case len(o.PerClass) > 0:
		return o.PerClass[0], nil
	case len(o.Batch) > 0:
		return o.Batch[0], nil
	case len(o.Values) > 0:
		return o.Values, nil
	}
	return nil, errEmptyShapOutput
}

// Explainer produces per-feature Shapley values for one model input.
type Explainer interface {
	Kind() string
	ShapValues(ctx context.Context, x []float64) (ShapOutput, error)
}

// valueFunc is the expected model output when only the features in mask
// are known.
type valueFunc func(mask uint) (float64, error)

// exactShapley enumerates every coalition of n features. n is small (6) so
// the 2^n evaluations are exact rather than sampled.
func exactShapley(ctx context.Context, n int, v valueFunc) ([]float64, error) {
	total := 1 << uint(n)
	values := make([]float64, total)
	for mask := 0; mask < total; mask++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		val, err := v(uint(mask))
		if err != nil {
			return nil, err
		}
		values[mask] = val
	}

	// weights[s] = s! (n-s-1)! / n!
	fact := make([]float64, n+1)
	fact[0] = 1
	for i := 1; i <= n; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	weights := make([]float64, n)
	for s := 0; s < n; s++ {
		weights[s] = fact[s] * fact[n-s-1] / fact[n]
	}

	phi := make([]float64, n)
	for i := 0; i < n; i++ {
		bit := 1 << uint(i)
		for mask := 0; mask < total; mask++ {
			if mask&bit != 0 {
				continue
			}
			s := bits.OnesCount(uint(mask))
			phi[i] += weights[s] * (values[mask|bit] - values[mask])
		}
	}
	return phi, nil
}

// TreeExplainer computes path-dependent Shapley values for tree ensembles.
type TreeExplainer struct {
	trees []Tree
}

func NewTreeExplainer(model treeEnsemble) (*TreeExplainer, error) {
	trees := model.Trees()
	if len(trees) == 0 {
		return nil, fmt.Errorf("model %s has no trees", model.Type())
	}
	for i, t := range trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &TreeExplainer{trees: trees}, nil
}

func (e *TreeExplainer) Kind() string { return KindTreeExplainer }

// ShapValues returns one vector per class. Class 0 mirrors class 1 since
// p0 = 1 - p1.
func (e *TreeExplainer) ShapValues(ctx context.Context, x []float64) (ShapOutput, error) {
	if err := checkInput(x); err != nil {
		return ShapOutput{}, err
	}
	phi, err := exactShapley(ctx, features.NumFeatures, func(mask uint) (float64, error) {
		var sum float64
		for _, t := range e.trees {
			sum += t.expected(x, mask, 0)
		}
		return sum / float64(len(e.trees)), nil
	})
	if err != nil {
		return ShapOutput{}, err
	}
	neg := make([]float64, len(phi))
	for i, v := range phi {
		neg[i] = -v
	}
	return ShapOutput{PerClass: [][]float64{neg, phi}}, nil
}

// KernelExplainer computes interventional Shapley values against a
// background sample: absent features are filled in from each background row.
type KernelExplainer struct {
	model      Model
	background [][]float64
	useProba   bool
}

// NewKernelExplainer binds the model to a background sample already in
// model input space.
func NewKernelExplainer(model Model, background [][]float64) (*KernelExplainer, error) {
	if len(background) == 0 {
		return nil, fmt.Errorf("background sample is empty")
	}
	if len(background) > maxBackgroundRows {
		background = background[:maxBackgroundRows]
	}
	rows := make([][]float64, len(background))
	for i, row := range background {
		if err := checkInput(row); err != nil {
			return nil, fmt.Errorf("background row %d: %w", i, err)
		}
		rows[i] = append([]float64(nil), row...)
	}

	_, hasProba, err := model.PredictProba(rows[0])
	if hasProba && err != nil {
		return nil, fmt.Errorf("failed to evaluate model on background: %w", err)
	}
	return &KernelExplainer{model: model, background: rows, useProba: hasProba}, nil
}

func (e *KernelExplainer) Kind() string { return KindKernelExplainer }

// output is P(class 1), or the hard label when the model has no
// probabilities.
func (e *KernelExplainer) output(z []float64) (float64, error) {
	if e.useProba {
		proba, _, err := e.model.PredictProba(z)
		if err != nil {
			return 0, err
		}
		return proba[1], nil
	}
	label, err := e.model.Predict(z)
	if err != nil {
		return 0, err
	}
	return float64(label), nil
}

// ShapValues returns a batch of one row.
func (e *KernelExplainer) ShapValues(ctx context.Context, x []float64) (ShapOutput, error) {
	if err := checkInput(x); err != nil {
		return ShapOutput{}, err
	}
	z := make([]float64, len(x))
	phi, err := exactShapley(ctx, features.NumFeatures, func(mask uint) (float64, error) {
		var sum float64
		for _, row := range e.background {
			for i := range z {
				if mask&(1<<uint(i)) != 0 {
					z[i] = x[i]
				} else {
					z[i] = row[i]
				}
			}
			out, err := e.output(z)
			if err != nil {
				return 0, err
			}
			sum += out
		}
		return sum / float64(len(e.background)), nil
	})
	if err != nil {
		return ShapOutput{}, err
	}
	return ShapOutput{Batch: [][]float64{phi}}, nil
}

// NewExplainer picks the tree explainer for tree ensembles and the kernel
// explainer otherwise. A tree explainer that cannot be built falls back to
// the kernel explainer.
func NewExplainer(model Model, background [][]float64) (Explainer, error) {
	if model == nil {
		return nil, ErrModelNotLoaded
	}
	if ensemble, ok := model.(treeEnsemble); ok {
		te, err := NewTreeExplainer(ensemble)
		if err == nil {
			log.Info().Str("model_type", model.Type()).Msg("SHAP TreeExplainer initialized")
			return te, nil
		}
		log.Warn().Err(err).Msg("TreeExplainer failed, trying KernelExplainer")
	}

	ke, err := NewKernelExplainer(model, background)
	if err != nil {
		return nil, fmt.Errorf("kernel explainer: %w", err)
	}
	log.Info().
		Str("model_type", model.Type()).
		Int("background_rows", len(ke.background)).
		Bool("probability_output", ke.useProba).
		Msg("SHAP KernelExplainer initialized")
	return ke, nil
}
