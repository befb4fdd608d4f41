// Package boltstore persists room definitions and operator accounts in a
// bbolt database. Runtime variable values are deliberately not stored here:
// a restart returns every room to its authored initial state.
package boltstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/escaped-rooms/roomctl/pkg/room"
)

var (
	bucketRooms     = []byte("rooms")
	bucketOperators = []byte("operators")
)

// ErrNotFound is returned when a room or operator does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Operator is a stored staff account. Hash is a bcrypt digest.
type Operator struct {
	Name    string    `json:"name"`
	Hash    []byte    `json:"hash"`
	Created time.Time `json:"created"`
}

// Store wraps a bbolt database holding room definitions and operators.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRooms, bucketOperators} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutRoom persists a room definition (write-through, keyed by room id).
func (s *Store) PutRoom(cfg *room.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("boltstore: encode room %s: %w", cfg.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).Put([]byte(cfg.ID), data)
	})
}

// GetRoom loads one room definition.
func (s *Store) GetRoom(id string) (*room.Config, error) {
	var data []byte
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRooms).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("boltstore: room %s: %w", id, ErrNotFound)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var cfg room.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("boltstore: decode room %s: %w", id, err)
	}
	return &cfg, nil
}

// Rooms returns all stored room definitions sorted by id.
func (s *Store) Rooms() ([]*room.Config, error) {
	var out []*room.Config
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var cfg room.Config
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("boltstore: decode room %s: %w", k, err)
			}
			out = append(out, &cfg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteRoom removes a room definition.
func (s *Store) DeleteRoom(id string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRooms).Get([]byte(id)) == nil {
			return fmt.Errorf("boltstore: room %s: %w", id, ErrNotFound)
		}
		return tx.Bucket(bucketRooms).Delete([]byte(id))
	})
}

// PutOperator persists an operator account.
func (s *Store) PutOperator(op *Operator) error {
	if op.Name == "" {
		return fmt.Errorf("boltstore: operator name must not be empty")
	}
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("boltstore: encode operator %s: %w", op.Name, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOperators).Put([]byte(op.Name), data)
	})
}

// GetOperator loads one operator account.
func (s *Store) GetOperator(name string) (*Operator, error) {
	var data []byte
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketOperators).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("boltstore: operator %s: %w", name, ErrNotFound)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var op Operator
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("boltstore: decode operator %s: %w", name, err)
	}
	return &op, nil
}

// OperatorCount reports how many operator accounts exist. Used at startup to
// decide whether to bootstrap an initial account.
func (s *Store) OperatorCount() (int, error) {
	n := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketOperators).Stats().KeyN
		return nil
	})
	return n, err
}
