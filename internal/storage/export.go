package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"legendary-classifier/internal/features"
)

var exportHeader = append(append([]string{"id", "timestamp"}, features.FeatureNames[:]...),
	"bst", "prediction", "probability_legendary", "confidence", "explanation_method", "model_type", "top_feature")

// ExportCSV writes every stored prediction as CSV, oldest first, and
// returns the number of rows written. Stat columns use the training data
// names.
func (s *Store) ExportCSV(w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).ForEach(func(_, v []byte) error {
			var r PredictionRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			row := []string{r.ID, r.Timestamp.Format(time.RFC3339Nano)}
			for _, stat := range r.Stats.Ints() {
				row = append(row, strconv.Itoa(stat))
			}
			row = append(row,
				strconv.Itoa(r.BST),
				strconv.Itoa(r.Prediction),
				strconv.FormatFloat(r.ProbabilityLegendary, 'f', 6, 64),
				r.Confidence,
				r.ExplanationMethod,
				r.ModelType,
				r.TopFeature,
			)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row %s: %w", r.ID, err)
			}
			n++
			return nil
		})
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}
