// Package storage persists prediction history for the legendary classifier.
// It uses BoltDB as the underlying storage engine; records are keyed by
// zero-padded timestamp so cursor order is chronological.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
)

const (
	predictionsBucket = "predictions"
	dbFileName        = "legendary-history.db"
)

// PredictionRecord is the stored summary of one served prediction.
type PredictionRecord struct {
	ID                   string              `json:"id"`
	Timestamp            time.Time           `json:"timestamp"`
	Stats                features.StatVector `json:"stats"`
	BST                  int                 `json:"bst"`
	Prediction           int                 `json:"prediction"`
	ProbabilityLegendary float64             `json:"probability_legendary"`
	Confidence           string              `json:"confidence"`
	ExplanationMethod    string              `json:"explanation_method"`
	ModelType            string              `json:"model_type"`
	TopFeature           string              `json:"top_feature,omitempty"`
}

// Store provides persistent prediction history using BoltDB. It is safe
// for concurrent use; BoltDB serializes writers.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// New opens (or creates) the history database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func recordKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// SavePrediction records a served prediction. It satisfies
// ml.HistoryRecorder.
func (s *Store) SavePrediction(result *ml.PredictionResult) error {
	if result == nil {
		return fmt.Errorf("nil prediction result")
	}

	record := PredictionRecord{
		ID:                   uuid.NewString(),
		Timestamp:            s.now().UTC(),
		Stats:                result.Stats,
		BST:                  result.BST,
		Prediction:           result.Prediction,
		ProbabilityLegendary: result.ProbabilityLegendary,
		Confidence:           result.Confidence,
		ExplanationMethod:    result.ExplanationMethod,
		ModelType:            result.ModelType,
	}
	if len(result.FeatureContributions) > 0 {
		record.TopFeature = result.FeatureContributions[0].Feature
	}
	return s.put(record)
}

func (s *Store) put(record PredictionRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		return b.Put(recordKey(record.Timestamp, record.ID), data)
	})
}

// RecentPredictions returns up to limit records, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	records := make([]PredictionRecord, 0)
	if limit <= 0 {
		return records, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// GetPredictionsInRange returns records with start <= timestamp <= end in
// chronological order.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		// '~' sorts after every character of a UUID
		endKey := []byte(fmt.Sprintf("%020d_~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
