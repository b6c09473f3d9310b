package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// TranscriptQueue is the pipeline surface the ingest service needs.
type TranscriptQueue interface {
	Enqueue(job pipeline.Job) error
}

// SubmitTranscriptInput is one transcript to ingest, parsed from a voice
// webhook or synthesized by Simulate.
type SubmitTranscriptInput struct {
	ProjectID      string // explicit routing id; may be empty
	AgentID        string // voice-agent fallback routing
	ConversationID string
	Transcript     string
	Language       string
}

// SimulateInput injects a transcript as a synthetic conversation, bypassing
// the voice runtime.
type SimulateInput struct {
	ProjectID      string
	Transcript     string
	ConversationID string // generated when empty
	Language       string
}

// SubmitResult reports where a transcript landed. Duplicate submissions are
// acknowledged without enqueueing so webhook retries stay harmless.
type SubmitResult struct {
	ProjectID      string
	ConversationID string
	Duplicate      bool
}

// IngestService routes transcripts to projects and hands them to the
// pipeline.
type IngestService struct {
	store          *store.Store
	queue          TranscriptQueue
	defaultProject string
	logger         *slog.Logger
}

// NewIngestService creates an IngestService. defaultProject may be empty;
// then webhooks without a resolvable project are rejected.
func NewIngestService(st *store.Store, queue TranscriptQueue, defaultProject string, logger *slog.Logger) *IngestService {
	if st == nil {
		panic("NewIngestService: store must not be nil")
	}
	if queue == nil {
		panic("NewIngestService: queue must not be nil")
	}
	if logger == nil {
		panic("NewIngestService: logger must not be nil")
	}
	return &IngestService{
		store:          st,
		queue:          queue,
		defaultProject: defaultProject,
		logger:         logger.With("component", "ingest_service"),
	}
}

// SubmitTranscript routes one transcript to its project and enqueues it for
// ingestion. Routing precedence: explicit project id, then voice-agent id,
// then the configured default project. Returns ErrNotFound when no project
// resolves and pipeline.ErrQueueFull (wrapped) when the queue is saturated.
func (s *IngestService) SubmitTranscript(ctx context.Context, input SubmitTranscriptInput) (*SubmitResult, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		return nil, NewValidationError("conversation_id", "conversation id is required")
	}
	if strings.TrimSpace(input.Transcript) == "" {
		return nil, NewValidationError("transcript", "transcript is required")
	}

	project, err := s.resolveProject(input.ProjectID, input.AgentID)
	if err != nil {
		return nil, err
	}

	duplicate, err := s.store.HasConversation(project.ID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if duplicate {
		s.logger.Info("duplicate conversation ignored",
			"project_id", project.ID, "conversation_id", conversationID)
		return &SubmitResult{ProjectID: project.ID, ConversationID: conversationID, Duplicate: true}, nil
	}

	job := pipeline.Job{
		ProjectID:      project.ID,
		ConversationID: conversationID,
		Transcript:     input.Transcript,
		Language:       input.Language,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, fmt.Errorf("failed to enqueue transcript: %w", err)
	}

	s.logger.Info("transcript accepted",
		"project_id", project.ID,
		"conversation_id", conversationID,
		"transcript_chars", len(input.Transcript))
	return &SubmitResult{ProjectID: project.ID, ConversationID: conversationID}, nil
}

// Simulate enqueues a transcript as a synthetic conversation on one project.
// Conversation ids are generated as sim-<project>-<12 hex> when absent.
func (s *IngestService) Simulate(ctx context.Context, input SimulateInput) (*SubmitResult, error) {
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return nil, NewValidationError("project_id", "project id is required")
	}
	if _, err := s.store.GetProject(projectID); err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		conversationID = fmt.Sprintf("sim-%s-%s", projectID, shortHex())
	}

	return s.SubmitTranscript(ctx, SubmitTranscriptInput{
		ProjectID:      projectID,
		ConversationID: conversationID,
		Transcript:     input.Transcript,
		Language:       input.Language,
	})
}

// resolveProject maps routing hints to a stored project. An explicit project
// id must exist; an unclaimed agent id falls through to the default project.
func (s *IngestService) resolveProject(projectID, agentID string) (*models.Project, error) {
	if id := strings.TrimSpace(projectID); id != "" {
		project, err := s.store.GetProject(id)
		if err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to load project: %w", err)
		}
		return project, nil
	}

	if id := strings.TrimSpace(agentID); id != "" {
		project, err := s.store.FindProjectByAgentID(id)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, store.ErrProjectNotFound) {
			return nil, fmt.Errorf("failed to resolve agent id: %w", err)
		}
	}

	if s.defaultProject != "" {
		project, err := s.store.GetProject(s.defaultProject)
		if err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to load default project: %w", err)
		}
		return project, nil
	}

	return nil, ErrNotFound
}

// shortHex returns 12 hex chars of a fresh UUID.
func shortHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
