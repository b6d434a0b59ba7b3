// Package ml serves predictions from the legendary classifier and explains
// them. It holds the model capability interface, the Shapley explainers, the
// importance-weighted fallback attribution and the nearest-neighbour finder.
//
// Everything is assembled once into an immutable Predictor at startup and
// shared read-only across requests.
package ml

import (
	"context"

	"legendary-classifier/internal/features"
)

// PredictorInterface is the surface the HTTP layer and the evaluator consume.
type PredictorInterface interface {
	// Predict classifies the stats and explains the decision.
	Predict(ctx context.Context, stats features.StatVector) (*PredictionResult, error)

	// FeatureImportance returns the global importance ranking of the model.
	FeatureImportance() (*ImportanceReport, error)

	// SimilarPokemon returns the closest records of the reference dataset.
	SimilarPokemon(ctx context.Context, stats features.StatVector) (*SimilarReport, error)

	// Health reports which artifacts are loaded.
	Health() HealthStatus
}

// Model is the capability set of a trained classifier. Optional capabilities
// report ok=false when the model does not have them.
type Model interface {
	// Type is the classifier family, e.g. "RandomForestClassifier".
	Type() string

	Predict(x []float64) (int, error)

	// PredictProba returns [p0, p1]. ok is false when the model only
	// produces hard labels.
	PredictProba(x []float64) (proba []float64, ok bool, err error)

	FeatureImportances() ([]float64, bool)

	Coefficients() ([]float64, bool)
}

// HistoryRecorder persists served predictions.
type HistoryRecorder interface {
	SavePrediction(result *PredictionResult) error
}
