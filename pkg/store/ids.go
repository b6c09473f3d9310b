package store

import (
	"fmt"

	"github.com/boltdb/bolt"
)

const (
	counterEvidence    = "evidence"
	counterProposition = "propositions"
	counterInterview   = "interviews"
)

// ReserveEvidenceIDs allocates n sequential evidence ids ("E001", "E002", ...)
// for a project. Reserved ids are burned even if the diff that requested them
// is never committed, so ids are never reused.
func (s *Store) ReserveEvidenceIDs(projectID string, n int) ([]string, error) {
	return s.reserve(projectID, counterEvidence, "E%03d", n)
}

// ReservePropositionIDs allocates n sequential proposition ids ("P001", ...).
func (s *Store) ReservePropositionIDs(projectID string, n int) ([]string, error) {
	return s.reserve(projectID, counterProposition, "P%03d", n)
}

// NextInterviewID allocates the next interview id ("INT_001", ...).
func (s *Store) NextInterviewID(projectID string) (string, error) {
	ids, err := s.reserve(projectID, counterInterview, "INT_%03d", 1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *Store) reserve(projectID, counter, format string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProjects).Get([]byte(projectID)) == nil {
			return ErrProjectNotFound
		}
		b := tx.Bucket(bucketCounters)
		key := scopedKey(projectID, counter)
		next := btoi(b.Get(key))
		ids = make([]string, 0, n)
		for i := 0; i < n; i++ {
			next++
			ids = append(ids, fmt.Sprintf(format, next))
		}
		return b.Put(key, itob(next))
	})
	if err != nil {
		if err == ErrProjectNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve %s ids: %w", counter, err)
	}
	return ids, nil
}
