// Package persistence implements the optional durable client state: a
// snapshot of the document root plus the pending-change log, stored in a
// bolt database. On restart the document replays the snapshot and then the
// log in client-sequence order.
package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketChanges   = []byte("changes")
)

// Snapshot is the durable image of a document.
type Snapshot struct {
	Root       []byte            `json:"root"`
	Checkpoint change.Checkpoint `json:"checkpoint"`
	Versions   clock.Vector      `json:"versionVector"`
}

// Store is a bolt-backed snapshot and pending-change log, shared by every
// document of one client.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChanges)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %v", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot persists the document image and prunes log records at or
// below its checkpoint.
func (s *Store) SaveSnapshot(docKey string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %v", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSnapshots).Put([]byte(docKey), data); err != nil {
			return err
		}
		return pruneChanges(tx, docKey, snapshot.Checkpoint.ClientSeq)
	})
}

// LoadSnapshot returns the stored image, reporting whether one exists.
func (s *Store) LoadSnapshot(docKey string) (Snapshot, bool, error) {
	var snapshot Snapshot
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(docKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snapshot)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %v", err)
	}
	return snapshot, found, nil
}

// AppendChange appends one pending change record keyed by its client
// sequence.
func (s *Store) AppendChange(docKey string, clientSeq uint32, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChanges).Put(changeKey(docKey, clientSeq), data)
	})
}

// ChangesSince returns pending change records with a client sequence
// strictly above since, in order.
func (s *Store) ChangesSince(docKey string, since uint32) ([][]byte, error) {
	var records [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketChanges).Cursor()
		prefix := []byte(docKey + "/")
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			seq, ok := seqOf(k, prefix)
			if !ok || seq <= since {
				continue
			}
			record := make([]byte, len(v))
			copy(record, v)
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read changes: %v", err)
	}
	return records, nil
}

// Prune drops log records with a client sequence at or below upTo.
func (s *Store) Prune(docKey string, upTo uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return pruneChanges(tx, docKey, upTo)
	})
}

func pruneChanges(tx *bolt.Tx, docKey string, upTo uint32) error {
	cursor := tx.Bucket(bucketChanges).Cursor()
	prefix := []byte(docKey + "/")
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		seq, ok := seqOf(k, prefix)
		if !ok {
			continue
		}
		if seq > upTo {
			break
		}
		if err := cursor.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// changeKey builds "docKey/" + big-endian clientSeq so the cursor iterates
// records in sequence order.
func changeKey(docKey string, clientSeq uint32) []byte {
	key := make([]byte, 0, len(docKey)+5)
	key = append(key, docKey...)
	key = append(key, '/')
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], clientSeq)
	return append(key, seq[:]...)
}

func seqOf(key, prefix []byte) (uint32, bool) {
	if len(key) != len(prefix)+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(key[len(prefix):]), true
}
