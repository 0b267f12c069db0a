package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltSink stores each task's trail in its own bucket, keyed by the
// bucket's monotonic sequence so iteration order is append order.
type BoltSink struct {
	db *bolt.DB
}

// NewBoltSink opens (or creates) the bolt database at path.
func NewBoltSink(path string) (*BoltSink, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &BoltSink{db: db}, nil
}

// Append writes the event into the task's bucket under the next sequence key.
func (s *BoltSink) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(event.TaskID))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", event.TaskID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// ReadTrail returns the task's events in append order. A missing bucket is
// an empty trail.
func (s *BoltSink) ReadTrail(ctx context.Context, taskID string) ([]Event, error) {
	var events []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(taskID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return nil
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return events, err
	}
	return events, nil
}

// Close releases the database handle.
func (s *BoltSink) Close() error {
	return s.db.Close()
}
