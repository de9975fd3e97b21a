// Package history persists the structured run history: graph snapshots
// before and after actions, outcomes, and recovery attempts, in an
// orderly timestamped sequence. The core emits this data but never
// interprets it.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketRuns    = "runs"
	bucketRecords = "records"
)

// Record kinds appended during a run.
const (
	KindSnapshot     = "snapshot"
	KindOutcome      = "outcome"
	KindPlan         = "plan"
	KindRecovery     = "recovery"
	KindVerification = "verification"
)

// RunMeta describes one orchestrated task run.
type RunMeta struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	State     string    `json:"state"` // "running", "completed", "failed"
}

// Record is one timestamped entry in a run's history.
type Record struct {
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store is a bbolt-backed run history store.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRecords))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a new run in the "running" state.
func (s *Store) BeginRun(runID, task string) error {
	meta := RunMeta{ID: runID, Task: task, StartedAt: time.Now(), State: "running"}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal run meta: %w", err)
		}
		if err := tx.Bucket([]byte(bucketRuns)).Put([]byte(runID), data); err != nil {
			return err
		}
		_, err = tx.Bucket([]byte(bucketRecords)).CreateBucketIfNotExists([]byte(runID))
		return err
	})
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(runID, state string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		var meta RunMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("parse run meta: %w", err)
		}
		meta.State = state
		meta.EndedAt = time.Now()
		out, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal run meta: %w", err)
		}
		return b.Put([]byte(runID), out)
	})
}

// Append adds one record to a run's ordered history. The payload is
// marshaled to JSON; sequence numbers are assigned by the store.
func (s *Store) Append(runID, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		runBucket, err := tx.Bucket([]byte(bucketRecords)).CreateBucketIfNotExists([]byte(runID))
		if err != nil {
			return err
		}
		seq, err := runBucket.NextSequence()
		if err != nil {
			return err
		}
		rec := Record{Seq: seq, Kind: kind, Timestamp: time.Now(), Data: data}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return runBucket.Put(seqKey(seq), encoded)
	})
}

// Records returns a run's history in append order.
func (s *Store) Records(runID string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		runBucket := tx.Bucket([]byte(bucketRecords)).Bucket([]byte(runID))
		if runBucket == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return runBucket.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("parse record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Runs lists all recorded runs.
func (s *Store) Runs() ([]RunMeta, error) {
	var runs []RunMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).ForEach(func(_, v []byte) error {
			var meta RunMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("parse run meta: %w", err)
			}
			runs = append(runs, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// seqKey encodes a sequence number so byte order equals numeric order.
func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%019d", seq))
}
