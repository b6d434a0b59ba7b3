package features

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	NumFeatures = 6
	MinStat     = 1
	MaxStat     = 255
)

// FeatureNames is the column order the classifier was trained on.
var FeatureNames = [NumFeatures]string{"hp", "attack", "defense", "sp_attack", "sp_defense", "speed"}

var displayNames = map[string]string{
	"hp":         "HP",
	"attack":     "Attack",
	"defense":    "Defense",
	"sp_attack":  "Special Attack",
	"sp_defense": "Special Defense",
	"speed":      "Speed",
}

// DisplayName returns the human readable name of a feature key.
func DisplayName(feature string) string {
	if name, ok := displayNames[feature]; ok {
		return name
	}
	return feature
}

// StatVector holds the six base stats of a Pokémon.
type StatVector struct {
	HP        int `json:"hp" yaml:"hp" validate:"required,min=1,max=255"`
	Attack    int `json:"attack" yaml:"attack" validate:"required,min=1,max=255"`
	Defense   int `json:"defense" yaml:"defense" validate:"required,min=1,max=255"`
	SpAttack  int `json:"sp_attack" yaml:"sp_attack" validate:"required,min=1,max=255"`
	SpDefense int `json:"sp_defense" yaml:"sp_defense" validate:"required,min=1,max=255"`
	Speed     int `json:"speed" yaml:"speed" validate:"required,min=1,max=255"`
}

// Ints returns the stats in feature order.
func (s StatVector) Ints() [NumFeatures]int {
	return [NumFeatures]int{s.HP, s.Attack, s.Defense, s.SpAttack, s.SpDefense, s.Speed}
}

// Values returns the stats in feature order as floats.
func (s StatVector) Values() []float64 {
	ints := s.Ints()
	out := make([]float64, NumFeatures)
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

// Total is the base stat total (BST).
func (s StatVector) Total() int {
	total := 0
	for _, v := range s.Ints() {
		total += v
	}
	return total
}

// Key identifies the vector in caches.
func (s StatVector) Key() string {
	ints := s.Ints()
	parts := make([]string, NumFeatures)
	for i, v := range ints {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ":")
}

// Validate checks every stat is inside [MinStat, MaxStat]. The HTTP layer
// validates through struct tags; this is for vectors built from files.
func (s StatVector) Validate() error {
	for i, v := range s.Ints() {
		if v < MinStat || v > MaxStat {
			return fmt.Errorf("%s must be between %d and %d, got %d", FeatureNames[i], MinStat, MaxStat, v)
		}
	}
	return nil
}

// FromValues builds a StatVector from values in feature order.
func FromValues(values []float64) (StatVector, error) {
	if len(values) != NumFeatures {
		return StatVector{}, fmt.Errorf("expected %d values, got %d", NumFeatures, len(values))
	}
	return StatVector{
		HP:        int(values[0]),
		Attack:    int(values[1]),
		Defense:   int(values[2]),
		SpAttack:  int(values[3]),
		SpDefense: int(values[4]),
		Speed:     int(values[5]),
	}, nil
}

// Transformer is a pre-fit scaling transform.
type Transformer interface {
	Transform(x []float64) ([]float64, error)
}

// BuildVector maps stats onto the model input vector, scaling when a
// transformer is supplied.
func BuildVector(s StatVector, scaler Transformer) ([]float64, error) {
	x := s.Values()
	if scaler == nil {
		return x, nil
	}
	scaled, err := scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}
	if len(scaled) != NumFeatures {
		return nil, fmt.Errorf("scaler returned %d features, expected %d", len(scaled), NumFeatures)
	}
	return scaled, nil
}

// BST tier thresholds
const (
	BSTPseudoLegendary = 600
	BSTStrong          = 500
	BSTAverage         = 400
)

// BSTTier buckets a base stat total.
func BSTTier(total int) string {
	switch {
	case total >= BSTPseudoLegendary:
		return "Pseudo-Legendary Tier"
	case total >= BSTStrong:
		return "Strong"
	case total >= BSTAverage:
		return "Average"
	default:
		return "Below Average"
	}
}
