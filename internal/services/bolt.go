package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/duochat/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB keeps a transcript of finished pane turns in a BoltDB file. It is a write-mostly
// diagnostic log: conversations are never restored from it, so chat history still starts empty on
// every run.
type BoltDB struct {
	db *bolt.DB
}

var turnsBucket = []byte("turns")

// NewBoltDB opens (or creates with 0600 permissions) the transcript database at path and makes sure
// the turns bucket exists.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(turnsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return BoltDB{}, fmt.Errorf("failed to create turns bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// RecordTurn appends a turn record. Keys are prefixed with the bucket sequence so records iterate
// in the order they were written.
func (b BoltDB) RecordTurn(_ context.Context, rec models.TurnRecord) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(turnsBucket)
		if bk == nil {
			return fmt.Errorf("bucket %s not found", turnsBucket)
		}

		seq, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}

		return bk.Put([]byte(fmt.Sprintf("%020d-%s", seq, rec.ID)), v)
	})
}

// Turns returns every recorded turn, oldest first.
func (b BoltDB) Turns(context.Context) ([]models.TurnRecord, error) {
	var turns []models.TurnRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(turnsBucket)
		if bk == nil {
			return nil
		}

		return bk.ForEach(func(_, v []byte) error {
			var rec models.TurnRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal turn: %w", err)
			}
			turns = append(turns, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// Close closes the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
