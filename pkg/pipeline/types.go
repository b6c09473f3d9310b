// Package pipeline turns accepted webhook transcripts into committed
// knowledge. A bounded in-memory queue feeds a fixed worker pool; each job
// runs the full ingest flow under its project's exclusive lock, so script
// versions within a project form a total order while distinct projects
// proceed in parallel.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueFull indicates the ingest queue is saturated; the caller should
	// answer the webhook with a retry-later status.
	ErrQueueFull = errors.New("ingest queue is full")

	// ErrStopped indicates the pipeline no longer accepts jobs.
	ErrStopped = errors.New("pipeline is stopped")
)

// Job is one accepted transcript waiting for ingestion.
type Job struct {
	ProjectID      string
	ConversationID string
	Transcript     string
	Language       string
	EnqueuedAt     time.Time
}

// Analyst extracts an analysis diff from one transcript against the current
// project snapshot.
type Analyst interface {
	Analyze(ctx context.Context, interviewID, transcript string, snap *models.Snapshot) (*models.AnalysisDiff, error)
}

// Designer produces the next script version from a post-commit snapshot.
// MinimalScript must never fail; it is the fallback when UpdateScript does.
type Designer interface {
	UpdateScript(ctx context.Context, snap *models.Snapshot, generatedAfter string) (*models.InterviewScript, error)
	MinimalScript(researchQuestion string, propositions []*models.Proposition, metrics models.ProjectMetrics, version int, generatedAfter string) *models.InterviewScript
}

// PromptPublisher pushes a rendered interviewer prompt to the voice runtime.
type PromptPublisher interface {
	PublishPrompt(ctx context.Context, agentID, prompt string) error
}

// projectIDs scopes the store's id counters to one project for the
// reconciler.
type projectIDs struct {
	store     *store.Store
	projectID string
}

func (s projectIDs) ReserveEvidenceIDs(n int) ([]string, error) {
	return s.store.ReserveEvidenceIDs(s.projectID, n)
}

func (s projectIDs) ReservePropositionIDs(n int) ([]string, error) {
	return s.store.ReservePropositionIDs(s.projectID, n)
}
