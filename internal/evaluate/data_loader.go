package evaluate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
)

// Sample is one labelled Pokémon to evaluate.
type Sample struct {
	Name      string              `json:"name"`
	Stats     features.StatVector `json:"stats"`
	Legendary int                 `json:"legendary"`
}

// DataLoader collects labelled samples from training-style files.
type DataLoader struct {
	samples []Sample
	skipped int
}

func NewDataLoader() *DataLoader {
	return &DataLoader{samples: make([]Sample, 0)}
}

// Load picks the reader from the file extension.
func (dl *DataLoader) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return dl.LoadFromCSV(path)
	case ".json":
		return dl.LoadFromJSON(path)
	default:
		return fmt.Errorf("cannot determine file format for: %s", path)
	}
}

// LoadFromCSV reads a training dataset. Rows whose stats fall outside the
// valid range are skipped.
func (dl *DataLoader) LoadFromCSV(path string) error {
	records, err := ml.LoadTrainingData(path)
	if err != nil {
		return err
	}

	loaded := 0
	for i, rec := range records {
		stats, err := features.FromValues(rec.Values)
		if err == nil {
			err = stats.Validate()
		}
		if err != nil {
			log.Warn().Err(err).Int("row", i+2).Msg("Skipping sample")
			dl.skipped++
			continue
		}
		dl.samples = append(dl.samples, Sample{
			Name:      rec.DisplayName(i),
			Stats:     stats,
			Legendary: rec.Legendary,
		})
		loaded++
	}

	log.Info().Str("file", path).Int("samples", loaded).Msg("Loaded samples from CSV")
	return nil
}

// LoadFromJSON reads a JSON array of samples.
func (dl *DataLoader) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	loaded := 0
	for i, s := range samples {
		if err := s.Stats.Validate(); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping sample")
			dl.skipped++
			continue
		}
		if s.Legendary != 0 && s.Legendary != 1 {
			log.Warn().Int("index", i).Int("legendary", s.Legendary).Msg("Skipping sample with invalid label")
			dl.skipped++
			continue
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("Pokemon #%d", i+1)
		}
		dl.samples = append(dl.samples, s)
		loaded++
	}

	log.Info().Str("file", path).Int("samples", loaded).Msg("Loaded samples from JSON")
	return nil
}

func (dl *DataLoader) Samples() []Sample {
	return dl.samples
}

// Skipped is the number of rows rejected while loading.
func (dl *DataLoader) Skipped() int {
	return dl.skipped
}
