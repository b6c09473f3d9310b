package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Load reads a project's complete state in one View transaction. Evidence,
// propositions and interviews come back in id order, scripts in version
// order, so Snapshot.CurrentScript is always the latest committed version.
func (s *Store) Load(projectID string) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	err := s.db.View(func(tx *bolt.Tx) error {
		project, err := getProject(tx, projectID)
		if err != nil {
			return err
		}
		snap.Project = project

		prefix := scopePrefix(projectID)
		if err := scanPrefix(tx.Bucket(bucketEvidence), prefix, func(v []byte) error {
			var e models.Evidence
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
			snap.Evidence = append(snap.Evidence, &e)
			return nil
		}); err != nil {
			return err
		}
		if err := scanPrefix(tx.Bucket(bucketPropositions), prefix, func(v []byte) error {
			var p models.Proposition
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal proposition: %w", err)
			}
			snap.Propositions = append(snap.Propositions, &p)
			return nil
		}); err != nil {
			return err
		}
		if err := scanPrefix(tx.Bucket(bucketInterviews), prefix, func(v []byte) error {
			var iv models.Interview
			if err := json.Unmarshal(v, &iv); err != nil {
				return fmt.Errorf("failed to unmarshal interview: %w", err)
			}
			snap.Interviews = append(snap.Interviews, &iv)
			return nil
		}); err != nil {
			return err
		}
		return scanPrefix(tx.Bucket(bucketScripts), prefix, func(v []byte) error {
			var sc models.InterviewScript
			if err := json.Unmarshal(v, &sc); err != nil {
				return fmt.Errorf("failed to unmarshal script: %w", err)
			}
			snap.Scripts = append(snap.Scripts, &sc)
			return nil
		})
	})
	if err != nil {
		if err == ErrProjectNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	return snap, nil
}

// scanPrefix invokes fn for every value whose key starts with prefix,
// in key order.
func scanPrefix(b *bolt.Bucket, prefix []byte, fn func(v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
