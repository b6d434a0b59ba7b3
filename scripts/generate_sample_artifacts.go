package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
)

type pokemon struct {
	name      string
	stats     [features.NumFeatures]float64
	legendary int
}

// Known stat lines anchor the synthetic roster.
var roster = []pokemon{
	{"Mewtwo", [6]float64{106, 110, 90, 154, 90, 130}, 1},
	{"Lugia", [6]float64{106, 90, 130, 90, 154, 110}, 1},
	{"Ho-Oh", [6]float64{106, 130, 90, 110, 154, 90}, 1},
	{"Articuno", [6]float64{90, 85, 100, 95, 125, 85}, 1},
	{"Zapdos", [6]float64{90, 90, 85, 125, 90, 100}, 1},
	{"Moltres", [6]float64{90, 100, 90, 125, 85, 90}, 1},
	{"Raikou", [6]float64{90, 85, 75, 115, 100, 115}, 1},
	{"Groudon", [6]float64{100, 150, 140, 100, 90, 90}, 1},
	{"Kyogre", [6]float64{100, 100, 90, 150, 140, 90}, 1},
	{"Rayquaza", [6]float64{105, 150, 90, 150, 90, 95}, 1},
	{"Dragonite", [6]float64{91, 134, 95, 100, 100, 80}, 0},
	{"Tyranitar", [6]float64{100, 134, 110, 95, 100, 61}, 0},
	{"Garchomp", [6]float64{108, 130, 95, 80, 85, 102}, 0},
	{"Snorlax", [6]float64{160, 110, 65, 65, 110, 30}, 0},
	{"Gengar", [6]float64{60, 65, 60, 130, 75, 110}, 0},
	{"Pikachu", [6]float64{35, 55, 40, 50, 50, 90}, 0},
	{"Bulbasaur", [6]float64{45, 49, 49, 65, 65, 45}, 0},
	{"Charmander", [6]float64{39, 52, 43, 60, 50, 65}, 0},
	{"Squirtle", [6]float64{44, 48, 65, 50, 64, 43}, 0},
	{"Rattata", [6]float64{30, 56, 35, 25, 35, 72}, 0},
	{"Pidgey", [6]float64{40, 45, 40, 35, 35, 56}, 0},
	{"Magikarp", [6]float64{20, 10, 55, 15, 20, 80}, 0},
}

func main() {
	var (
		outDir     = flag.String("out", "models", "Output directory")
		synthetic  = flag.Int("synthetic", 300, "Number of synthetic Pokémon to add")
		background = flag.Int("background", 100, "Background rows for the kernel explainer")
		seed       = flag.Int64("seed", 42, "Random seed")
		epochs     = flag.Int("epochs", 2000, "Gradient descent epochs")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("Generating sample artifacts...\n")
	fmt.Printf("  Output: %s\n", *outDir)
	fmt.Printf("  Synthetic rows: %d\n", *synthetic)

	data := append([]pokemon(nil), roster...)
	for i := 0; i < *synthetic; i++ {
		data = append(data, syntheticPokemon(rng, i))
	}

	scaler := fitScaler(data)
	weights, intercept := fitLogistic(data, scaler, *epochs)

	artifact := ml.ModelArtifact{
		ModelType:    ml.ArtifactLogisticRegression,
		Version:      "v1",
		CreatedAt:    time.Now().UTC(),
		Features:     features.FeatureNames[:],
		Coefficients: weights,
		Intercept:    intercept,
	}

	importances := make([]float64, len(weights))
	for i, w := range weights {
		importances[i] = math.Abs(w)
	}

	must(ml.SaveJSON(filepath.Join(*outDir, "legendary_classifier_v1.json"), artifact))
	must(ml.SaveJSON(filepath.Join(*outDir, "scaler.json"), scaler))
	must(ml.SaveJSON(filepath.Join(*outDir, "feature_importance.json"), ml.ImportanceArtifact{
		Type:        ml.ImportanceFromCoefficients,
		Importances: importances,
	}))
	must(writeCSV(filepath.Join(*outDir, "training_data.csv"), data, true))

	rng.Shuffle(len(data), func(i, j int) { data[i], data[j] = data[j], data[i] })
	must(writeCSV(filepath.Join(*outDir, "background_data.csv"), data[:min(*background, len(data))], false))

	fmt.Printf("\nModel coefficients:\n")
	for i, name := range features.FeatureNames {
		fmt.Printf("  %-11s %+.4f\n", name, weights[i])
	}
	fmt.Printf("  intercept   %+.4f\n", intercept)
	fmt.Printf("Training accuracy: %.2f%%\n", accuracy(data, scaler, weights, intercept)*100)
}

// syntheticPokemon draws a stat line around a legendary or ordinary
// archetype. Roughly one in twelve is legendary.
func syntheticPokemon(rng *rand.Rand, i int) pokemon {
	p := pokemon{name: "Synthetic #" + strconv.Itoa(i+1)}
	base, spread := 65.0, 25.0
	if rng.Float64() < 1.0/12 {
		p.legendary = 1
		base, spread = 105.0, 15.0
	}
	for j := range p.stats {
		v := math.Round(base + rng.NormFloat64()*spread)
		p.stats[j] = math.Max(features.MinStat, math.Min(features.MaxStat, v))
	}
	return p
}

func fitScaler(data []pokemon) *ml.StandardScaler {
	scaler := &ml.StandardScaler{
		Mean:  make([]float64, features.NumFeatures),
		Scale: make([]float64, features.NumFeatures),
	}
	column := make([]float64, len(data))
	for j := 0; j < features.NumFeatures; j++ {
		for i, p := range data {
			column[i] = p.stats[j]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		scaler.Mean[j] = mean
		scaler.Scale[j] = math.Sqrt(variance)
		if scaler.Scale[j] == 0 {
			scaler.Scale[j] = 1
		}
	}
	return scaler
}

func scaled(p pokemon, s *ml.StandardScaler) []float64 {
	x, err := s.Transform(p.stats[:])
	must(err)
	return x
}

// fitLogistic runs batch gradient descent with a small L2 penalty.
func fitLogistic(data []pokemon, s *ml.StandardScaler, epochs int) ([]float64, float64) {
	const (
		rate   = 0.1
		lambda = 0.01
	)
	xs := make([][]float64, len(data))
	for i, p := range data {
		xs[i] = scaled(p, s)
	}

	w := make([]float64, features.NumFeatures)
	grad := make([]float64, features.NumFeatures)
	var b float64
	n := float64(len(data))
	for epoch := 0; epoch < epochs; epoch++ {
		for j := range grad {
			grad[j] = lambda * w[j]
		}
		var gb float64
		for i, x := range xs {
			errTerm := sigmoid(floats.Dot(w, x)+b) - float64(data[i].legendary)
			floats.AddScaled(grad, errTerm/n, x)
			gb += errTerm / n
		}
		floats.AddScaled(w, -rate, grad)
		b -= rate * gb
	}
	return w, b
}

func accuracy(data []pokemon, s *ml.StandardScaler, w []float64, b float64) float64 {
	correct := 0
	for _, p := range data {
		pred := 0
		if sigmoid(floats.Dot(w, scaled(p, s))+b) >= 0.5 {
			pred = 1
		}
		if pred == p.legendary {
			correct++
		}
	}
	return float64(correct) / float64(len(data))
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func writeCSV(path string, rows []pokemon, withLabels bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string(nil), features.FeatureNames[:]...)
	if withLabels {
		header = append([]string{"Name"}, append(header, "legendary")...)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, p := range rows {
		var record []string
		if withLabels {
			record = append(record, p.name)
		}
		for _, v := range p.stats {
			record = append(record, strconv.Itoa(int(v)))
		}
		if withLabels {
			record = append(record, strconv.Itoa(p.legendary))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	fmt.Printf("  Wrote %s (%d rows)\n", path, len(rows))
	return nil
}

func must(err error) {
	if err != nil {
		log.Fatalf("Failed to generate artifacts: %v", err)
	}
}
