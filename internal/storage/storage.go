// Package storage keeps the prediction log of the HTTP service.
// It uses BoltDB as the underlying storage engine and stores one JSON record
// per scored input, keyed by time so range and most-recent queries are
// cursor scans.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	predictionsBucket = "predictions"
	dbFile            = "predictions.db"
)

// Prediction sources.
const (
	SourceSingle = "single"
	SourceBatch  = "batch"
)

// PredictionRecord is one logged prediction.
type PredictionRecord struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	Source       string             `json:"source"`
	BatchID      string             `json:"batch_id,omitempty"`
	Input        map[string]float64 `json:"input"`
	Prediction   int                `json:"prediction"`
	Probability  float64            `json:"probability"`
	RiskLevel    string             `json:"risk_level"`
	ModelVersion string             `json:"model_version"`
}

// Store provides persistent storage for prediction records using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

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

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// timeKey orders records by timestamp; the bucket sequence breaks ties.
func timeKey(ts time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d_%010d", ts.UnixNano(), seq))
}

func timePrefix(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}

func put(b *bbolt.Bucket, rec *PredictionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	key := timeKey(rec.Timestamp, seq)
	if rec.ID == "" {
		rec.ID = string(key)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	return b.Put(key, data)
}

// StorePrediction logs one record. A zero timestamp is set to now and an
// empty ID to the storage key.
func (s *Store) StorePrediction(rec PredictionRecord) (PredictionRecord, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket([]byte(predictionsBucket)), &rec)
	})
	return rec, err
}

// StorePredictions logs records in a single transaction.
func (s *Store) StorePredictions(recs []PredictionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		for i := range recs {
			if err := put(b, &recs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPredictionsInRange returns records with start <= timestamp <= end,
// oldest first.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		endKey := timePrefix(end)

		for k, v := c.Seek(timePrefix(start)); k != nil && bytes.Compare(k[:len(endKey)], endKey) <= 0; k, v = c.Next() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// RecentPredictions returns up to n records, newest first.
func (s *Store) RecentPredictions(n int) ([]PredictionRecord, error) {
	records := []PredictionRecord{}
	if n <= 0 {
		return records, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// RiskDistribution counts logged predictions per risk level.
func (s *Store) RiskDistribution() (map[string]int, error) {
	dist := make(map[string]int)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).ForEach(func(_, v []byte) error {
			var rec struct {
				RiskLevel string `json:"risk_level"`
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			dist[rec.RiskLevel]++
			return nil
		})
	})

	return dist, err
}

// Count is the number of logged predictions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
