// Package store persists projects and their knowledge bases in a single
// BoltDB file. All reads of one project happen inside one View transaction
// and all writes of one reconciliation inside one Update transaction, so
// readers never observe a half-applied commit.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
)

var (
	bucketProjects      = []byte("projects")
	bucketEvidence      = []byte("evidence")
	bucketPropositions  = []byte("propositions")
	bucketInterviews    = []byte("interviews")
	bucketScripts       = []byte("scripts")
	bucketCounters      = []byte("counters")
	bucketConversations = []byte("conversations")
)

// Store wraps a BoltDB instance and manages its lifecycle.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database file at path and ensures
// all buckets exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketProjects, bucketEvidence, bucketPropositions,
			bucketInterviews, bucketScripts, bucketCounters, bucketConversations,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB instance.
func (s *Store) Close() error {
	return s.db.Close()
}

// scopedKey namespaces an entity key under its project. Bolt buckets are
// shared across projects; every non-project key is "<projectID>/<suffix>".
func scopedKey(projectID, suffix string) []byte {
	return []byte(projectID + "/" + suffix)
}

// scopePrefix is the cursor prefix covering every key of one project.
func scopePrefix(projectID string) []byte {
	return []byte(projectID + "/")
}

// scriptKey orders script versions lexicographically within a project scope.
func scriptKey(projectID string, version int) []byte {
	return scopedKey(projectID, fmt.Sprintf("%08d", version))
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
