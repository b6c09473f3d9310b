package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// CreateProject persists a new project. The id must be unused.
func (s *Store) CreateProject(project *models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(project.ID)) != nil {
			return ErrProjectExists
		}
		return b.Put([]byte(project.ID), data)
	})
	if err != nil {
		if err == ErrProjectExists {
			return err
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject loads a single project by id.
func (s *Store) GetProject(projectID string) (*models.Project, error) {
	var project *models.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		p, err := getProject(tx, projectID)
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects returns every project, ordered by id.
func (s *Store) ListProjects() ([]*models.Project, error) {
	var projects []*models.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			projects = append(projects, &p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project and everything scoped under it: evidence,
// propositions, interviews, scripts, counters and processed conversations.
func (s *Store) DeleteProject(projectID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(projectID)) == nil {
			return ErrProjectNotFound
		}
		if err := b.Delete([]byte(projectID)); err != nil {
			return err
		}
		for _, bucket := range [][]byte{
			bucketEvidence, bucketPropositions, bucketInterviews,
			bucketScripts, bucketCounters, bucketConversations,
		} {
			if err := deletePrefix(tx.Bucket(bucket), scopePrefix(projectID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == ErrProjectNotFound {
			return err
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// FindProjectByAgentID returns the project bound to a voice agent, used to
// route webhooks that carry no explicit project id.
func (s *Store) FindProjectByAgentID(agentID string) (*models.Project, error) {
	if agentID == "" {
		return nil, ErrProjectNotFound
	}
	var found *models.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			if found != nil {
				return nil
			}
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			if p.VoiceAgentID == agentID {
				found = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}
	if found == nil {
		return nil, ErrProjectNotFound
	}
	return found, nil
}

// ListPendingPublish returns projects whose latest script never reached the
// voice platform and still needs a republish.
func (s *Store) ListPendingPublish() ([]*models.Project, error) {
	var pending []*models.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			if p.SyncPending {
				pending = append(pending, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}
	return pending, nil
}

func getProject(tx *bolt.Tx, projectID string) (*models.Project, error) {
	data := tx.Bucket(bucketProjects).Get([]byte(projectID))
	if data == nil {
		return nil, ErrProjectNotFound
	}
	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func putProject(tx *bolt.Tx, project *models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return tx.Bucket(bucketProjects).Put([]byte(project.ID), data)
}

// deletePrefix removes every key under prefix from b.
func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
