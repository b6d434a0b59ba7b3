package ml

import (
	"fmt"

	"legendary-classifier/internal/features"
)

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) != features.NumFeatures || len(s.Scale) != features.NumFeatures {
		return fmt.Errorf("scaler must have %d means and scales, got %d and %d",
			features.NumFeatures, len(s.Mean), len(s.Scale))
	}
	return nil
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if err := checkInput(x); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		// Constant features were fit with zero variance
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}
