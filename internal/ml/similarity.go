package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"legendary-classifier/internal/features"
)

// ErrNoReferenceData is returned when the similarity dataset is empty.
var ErrNoReferenceData = errors.New("no reference data")

// NameColumns are checked in order when resolving a record's display name.
var NameColumns = []string{"name_stats", "Name", "pokemon_name"}

// SimilarityRecord is one training row reduced to its stats, name columns
// and legendary flag.
type SimilarityRecord struct {
	Values    []float64
	Names     map[string]string
	Legendary int
}

// DisplayName returns the first usable name column, or a positional
// placeholder. idx is the record's 0-based position in the dataset.
func (r SimilarityRecord) DisplayName(idx int) string {
	for _, col := range NameColumns {
		v, ok := r.Names[col]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		return v
	}
	return fmt.Sprintf("Pokemon #%d", idx+1)
}

// Total is the record's BST.
func (r SimilarityRecord) Total() int {
	return int(floats.Sum(r.Values))
}

type SimilarPokemon struct {
	Name      string  `json:"name"`
	Distance  float64 `json:"distance"`
	BST       int     `json:"bst"`
	Legendary int     `json:"legendary"`
}

type SimilarReport struct {
	SimilarPokemon []SimilarPokemon `json:"similar_pokemon"`
	Count          int              `json:"count"`
}

// FindSimilar returns the k records closest to stats by Euclidean distance.
// Equal distances keep dataset order.
func FindSimilar(stats features.StatVector, records []SimilarityRecord, k int) ([]SimilarPokemon, error) {
	if len(records) == 0 {
		return nil, ErrNoReferenceData
	}

	query := stats.Values()
	all := make([]SimilarPokemon, 0, len(records))
	for idx, rec := range records {
		if len(rec.Values) != features.NumFeatures {
			return nil, fmt.Errorf("record %d has %d stats, expected %d", idx, len(rec.Values), features.NumFeatures)
		}
		all = append(all, SimilarPokemon{
			Name:      rec.DisplayName(idx),
			Distance:  floats.Distance(query, rec.Values, 2),
			BST:       rec.Total(),
			Legendary: rec.Legendary,
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Distance < all[j].Distance
	})

	if k > 0 && len(all) > k {
		all = all[:k]
	}
	for i := range all {
		if math.IsNaN(all[i].Distance) {
			return nil, fmt.Errorf("distance to %s is not a number", all[i].Name)
		}
	}
	return all, nil
}
