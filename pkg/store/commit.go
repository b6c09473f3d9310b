package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Commit applies one validated diff in a single Update transaction. Either
// every change lands or none does; readers never observe a partial commit.
// Script versions must strictly increase, duplicate commits of the same
// version fail with ErrVersionConflict.
func (s *Store) Commit(projectID string, diff *models.StoreDiff) error {
	if diff.Empty() {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		project, err := getProject(tx, projectID)
		if err != nil {
			return err
		}

		evidence := tx.Bucket(bucketEvidence)
		for _, e := range diff.NewEvidence {
			if err := putJSON(evidence, scopedKey(projectID, e.ID), e); err != nil {
				return fmt.Errorf("failed to store evidence %s: %w", e.ID, err)
			}
		}

		propositions := tx.Bucket(bucketPropositions)
		for _, p := range diff.NewPropositions {
			if err := putJSON(propositions, scopedKey(projectID, p.ID), p); err != nil {
				return fmt.Errorf("failed to store proposition %s: %w", p.ID, err)
			}
		}
		for _, p := range diff.UpdatedPropositions {
			if err := putJSON(propositions, scopedKey(projectID, p.ID), p); err != nil {
				return fmt.Errorf("failed to update proposition %s: %w", p.ID, err)
			}
		}

		if diff.Interview != nil {
			key := scopedKey(projectID, diff.Interview.ID)
			if err := putJSON(tx.Bucket(bucketInterviews), key, diff.Interview); err != nil {
				return fmt.Errorf("failed to store interview %s: %w", diff.Interview.ID, err)
			}
		}

		if diff.Script != nil {
			if diff.Script.Version <= project.CurrentScriptVersion {
				return fmt.Errorf("%w: version %d already committed (current %d)",
					ErrVersionConflict, diff.Script.Version, project.CurrentScriptVersion)
			}
			key := scriptKey(projectID, diff.Script.Version)
			if err := putJSON(tx.Bucket(bucketScripts), key, diff.Script); err != nil {
				return fmt.Errorf("failed to store script v%d: %w", diff.Script.Version, err)
			}
			project.CurrentScriptVersion = diff.Script.Version
		}

		if diff.Metrics != nil {
			project.Metrics = *diff.Metrics
		}
		if diff.MarkConversation != "" {
			key := scopedKey(projectID, diff.MarkConversation)
			if err := tx.Bucket(bucketConversations).Put(key, []byte{1}); err != nil {
				return fmt.Errorf("failed to mark conversation: %w", err)
			}
		}
		if diff.SyncPending != nil {
			project.SyncPending = *diff.SyncPending
		}
		if diff.SyncPendingVersion != nil {
			project.SyncPendingScriptVersion = *diff.SyncPendingVersion
		}
		if diff.ReportStale != nil {
			project.ReportStale = *diff.ReportStale
		}
		if diff.Report != nil {
			project.Report = *diff.Report
			now := time.Now().UTC()
			project.ReportGeneratedAt = &now
		}
		if diff.VoiceAgentID != nil {
			project.VoiceAgentID = *diff.VoiceAgentID
		}
		if diff.ProjectStatus != "" {
			project.Status = diff.ProjectStatus
		}

		return putProject(tx, project)
	})
	if err != nil {
		if err == ErrProjectNotFound {
			return err
		}
		return fmt.Errorf("failed to commit diff for %s: %w", projectID, err)
	}
	return nil
}

// HasConversation reports whether a webhook conversation id was already
// processed for this project.
func (s *Store) HasConversation(projectID, conversationID string) (bool, error) {
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		key := scopedKey(projectID, conversationID)
		seen = tx.Bucket(bucketConversations).Get(key) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return seen, nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	return b.Put(key, data)
}
