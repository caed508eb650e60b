package database

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	runsBucket = []byte("runs")

	// ErrNotFound is returned when a run ID has no record.
	ErrNotFound = errors.New("run not found")
)

type Database bbolt.DB

func NewDB(path string) (*Database, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return (*Database)(db), nil
}

func (s *Database) Close() error {
	return s.get().Close()
}

func (s *Database) get() *bbolt.DB {
	return (*bbolt.DB)(s)
}

// SaveRun stores r under a fresh ID and writes that ID back into r.
func (s *Database) SaveRun(r *Run) error {
	return s.get().Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.ID = id

		buf, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(itob(id), buf)
	})
}

func (s *Database) GetRun(id uint64) (*Run, error) {
	r := &Run{}
	err := s.get().View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(runsBucket).Get(itob(id))
		if v == nil {
			return fmt.Errorf("run %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Runs returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Database) Runs(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.get().View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			r := &Run{}
			if err := json.Unmarshal(v, r); err != nil {
				return fmt.Errorf("run %d: %w", binary.BigEndian.Uint64(k), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	return runs, err
}

// LastRun returns the most recent run, or ErrNotFound if none was stored.
func (s *Database) LastRun() (*Run, error) {
	runs, err := s.Runs(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
