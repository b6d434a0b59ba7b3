package ml

import (
	"fmt"
	"math"

	"legendary-classifier/internal/features"
)

// deviationScale normalises stat deviations. It is fixed, not the stat range.
const deviationScale = 100.0

// Fallback labelling thresholds
const (
	fallbackNeutral = 0.01
	fallbackHigh    = 0.15
	fallbackMedium  = 0.05
)

// FallbackContributions scores each feature by its deviation from the
// centroid of the predicted class, weighted by importance and by the model's
// probability. Positive always supports the predicted class.
func FallbackContributions(stats features.StatVector, prediction int, probLegendary float64, importance *ImportanceTable) []Contribution {
	if importance == nil {
		importance = UniformImportance()
	}

	values := stats.Ints()
	refs := features.ReferenceFor(prediction).Ints()

	out := make([]Contribution, features.NumFeatures)
	for i, name := range features.FeatureNames {
		v, r := values[i], refs[i]
		deviation := float64(v-r) / deviationScale

		var c float64
		if prediction == 1 {
			c = deviation * importance.Weight(i) * probLegendary
		} else {
			c = -deviation * importance.Weight(i) * (1 - probLegendary)
		}

		impact, magnitude := fallbackLabels(c)
		display := features.DisplayName(name)
		out[i] = Contribution{
			Feature:      name,
			DisplayName:  display,
			Value:        float64(v),
			Contribution: c,
			Impact:       impact,
			Magnitude:    magnitude,
			Explanation:  fmt.Sprintf("%s is %s", display, compareToReference(v, r)),
		}
	}

	sortByMagnitude(out)
	return out
}

func fallbackLabels(c float64) (impact, magnitude string) {
	abs := math.Abs(c)
	if abs < fallbackNeutral {
		return ImpactNeutral, MagnitudeLow
	}
	impact = ImpactNegative
	if c > 0 {
		impact = ImpactPositive
	}
	switch {
	case abs > fallbackHigh:
		return impact, MagnitudeHigh
	case abs > fallbackMedium:
		return impact, MagnitudeMedium
	default:
		return impact, MagnitudeLow
	}
}

func compareToReference(v, r int) string {
	switch {
	case v > r:
		return fmt.Sprintf("above average (%d vs %d)", v, r)
	case v < r:
		return fmt.Sprintf("below average (%d vs %d)", v, r)
	default:
		return fmt.Sprintf("at average (%d)", v)
	}
}
