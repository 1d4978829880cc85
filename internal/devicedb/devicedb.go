// Package devicedb keeps a small persistent record of every controller
// the daemon has seen, so `hhd list-devices` can report hardware that is
// not currently connected.
package devicedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
)

type Record struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	Mode        string    `json:"mode"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	Sessions    int       `json:"sessions"`
}

type Store struct {
	log *zap.Logger
	db  *badger.DB
	now func() time.Time
}

func New(db *badger.DB, log *zap.Logger, now func() time.Time) *Store {
	return &Store{
		log: log,
		db:  db,
		now: now,
	}
}

func (s *Store) key(address string) []byte {
	return []byte("devices/" + address)
}

// Observe records a sighting of the controller, creating the record on
// first contact. When session is true the sighting started an aggregation
// session and the session counter advances.
func (s *Store) Observe(address, name, mode string, session bool) (Record, error) {
	var rec Record
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := s.key(address)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device record: %w", err)
			}
		}
		rec.Address = address
		rec.Name = name
		rec.Mode = mode
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		if session {
			rec.Sessions++
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to observe device: %w", err)
	}
	return rec, nil
}

// List returns every recorded controller.
func (s *Store) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte("devices/")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec Record
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return records, nil
}
