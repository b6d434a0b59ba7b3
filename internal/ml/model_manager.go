package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/features"
)

// Artifact model_type values
const (
	ArtifactLogisticRegression = "logistic_regression"
	ArtifactLinearSVC          = "linear_svc"
	ArtifactRandomForest       = "random_forest"
)

// ModelArtifact is the on-disk form of a trained classifier.
type ModelArtifact struct {
	ModelType          string    `json:"model_type"`
	Version            string    `json:"version,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
	Features           []string  `json:"features,omitempty"`
	Coefficients       []float64 `json:"coefficients,omitempty"`
	Intercept          float64   `json:"intercept,omitempty"`
	Trees              []Tree    `json:"trees,omitempty"`
	FeatureImportances []float64 `json:"feature_importances,omitempty"`
}

// ImportanceArtifact is the on-disk form of pre-computed importances.
type ImportanceArtifact struct {
	Type        string    `json:"type"`
	Importances []float64 `json:"importances"`
}

// Build validates the artifact and returns the model it describes.
func (a *ModelArtifact) Build() (Model, error) {
	if len(a.Features) > 0 {
		if len(a.Features) != features.NumFeatures {
			return nil, fmt.Errorf("model trained on %d features, expected %d", len(a.Features), features.NumFeatures)
		}
		for i, name := range a.Features {
			if name != features.FeatureNames[i] {
				return nil, fmt.Errorf("feature %d is %q, expected %q", i, name, features.FeatureNames[i])
			}
		}
	}

	switch a.ModelType {
	case ArtifactLogisticRegression, ArtifactLinearSVC:
		if len(a.Coefficients) != features.NumFeatures {
			return nil, fmt.Errorf("expected %d coefficients, got %d", features.NumFeatures, len(a.Coefficients))
		}
		w := append([]float64(nil), a.Coefficients...)
		if a.ModelType == ArtifactLinearSVC {
			return &LinearSVC{Weights: w, Intercept: a.Intercept}, nil
		}
		return &LogisticRegression{Weights: w, Intercept: a.Intercept}, nil

	case ArtifactRandomForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("random forest has no trees")
		}
		for i, t := range a.Trees {
			if err := t.validate(); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		if a.FeatureImportances != nil && len(a.FeatureImportances) != features.NumFeatures {
			return nil, fmt.Errorf("expected %d feature importances, got %d", features.NumFeatures, len(a.FeatureImportances))
		}
		return &RandomForest{Forest: a.Trees, Importances: a.FeatureImportances}, nil
	}
	return nil, fmt.Errorf("unsupported model type %q", a.ModelType)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes an artifact with indentation, creating parent directories.
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func LoadModel(path string) (Model, error) {
	var artifact ModelArtifact
	if err := readJSON(path, &artifact); err != nil {
		return nil, err
	}
	model, err := artifact.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return model, nil
}

func LoadScaler(path string) (*StandardScaler, error) {
	var scaler StandardScaler
	if err := readJSON(path, &scaler); err != nil {
		return nil, err
	}
	if err := scaler.validate(); err != nil {
		return nil, fmt.Errorf("invalid scaler %s: %w", path, err)
	}
	return &scaler, nil
}

func LoadImportance(path string) (*ImportanceTable, error) {
	var artifact ImportanceArtifact
	if err := readJSON(path, &artifact); err != nil {
		return nil, err
	}
	kind := artifact.Type
	if kind == "" {
		kind = ImportanceFromModel
	}
	return NewImportanceTable(artifact.Importances, kind)
}

// ArtifactPaths locates everything the service loads at startup.
type ArtifactPaths struct {
	Model             string
	Scaler            string
	FeatureImportance string
	TrainingData      string
	BackgroundData    string
	ShapEnabled       bool
}

// Artifacts are the loaded, read-only inputs of a Predictor. Any field may
// be nil; a nil Model leaves the service degraded.
type Artifacts struct {
	Model        Model
	Scaler       *StandardScaler
	Importance   *ImportanceTable
	Explainer    Explainer
	TrainingData []SimilarityRecord
}

// LoadArtifacts loads every artifact it can. Only the model is required for
// predictions; failures are logged and leave the field nil.
func LoadArtifacts(paths ArtifactPaths) *Artifacts {
	a := &Artifacts{}

	if model, err := LoadModel(paths.Model); err != nil {
		log.Error().Err(err).Str("model_path", paths.Model).Msg("Error loading model")
	} else {
		a.Model = model
		log.Info().Str("model_type", model.Type()).Msg("Model loaded successfully")
	}

	if paths.Scaler != "" {
		scaler, err := LoadScaler(paths.Scaler)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Msg("No scaler found")
		case err != nil:
			log.Warn().Err(err).Msg("Failed to load scaler")
		default:
			a.Scaler = scaler
			log.Info().Msg("Scaler loaded successfully")
		}
	}

	if paths.FeatureImportance != "" {
		importance, err := LoadImportance(paths.FeatureImportance)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Msg("No pre-computed feature importance found")
		case err != nil:
			log.Warn().Err(err).Msg("Failed to load feature importance")
		default:
			a.Importance = importance
			log.Info().Str("type", importance.Kind()).Msg("Feature importance loaded")
		}
	}
	if a.Importance == nil && a.Model != nil {
		a.Importance = ExtractFeatureImportance(a.Model)
		log.Info().Str("type", a.Importance.Kind()).Msg("Feature importance extracted from model")
	}

	if a.Model != nil && paths.ShapEnabled {
		background := loadBackground(paths.BackgroundData)
		scaled, err := scaleRows(background, a.Scaler)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to scale background data, SHAP disabled")
		} else if explainer, err := NewExplainer(a.Model, scaled); err != nil {
			log.Warn().Err(err).Msg("SHAP initialization failed, will use fallback method")
		} else {
			a.Explainer = explainer
		}
	} else if !paths.ShapEnabled {
		log.Info().Msg("SHAP disabled, will use fallback method")
	}

	if paths.TrainingData != "" {
		records, err := LoadTrainingData(paths.TrainingData)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Msg("No training data file found")
		case err != nil:
			log.Warn().Err(err).Msg("Error loading training data")
		default:
			a.TrainingData = records
			log.Info().Int("samples", len(records)).Msg("Training data loaded")
		}
	}

	return a
}

func loadBackground(path string) [][]float64 {
	if path != "" {
		rows, err := LoadBackground(path)
		if err == nil && len(rows) > 0 {
			log.Info().Int("rows", len(rows)).Msg("Background data loaded")
			return rows
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("Failed to load background data")
		}
	}
	log.Warn().Msg("Creating synthetic background data for SHAP")
	return DefaultBackground
}

// scaleRows maps raw background stats into model input space.
func scaleRows(rows [][]float64, scaler *StandardScaler) ([][]float64, error) {
	if scaler == nil {
		return rows, nil
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := scaler.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("background row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}
