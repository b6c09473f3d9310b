package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/store"
	"github.com/eidetic-ai/eidetic/pkg/voice"
)

// projectIDPattern is the accepted shape of a project id. Ids become bolt key
// prefixes joined with "/", so the separator (and anything exotic) is kept out.
var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// InitialDesigner is the slice of the Designer used on project start: seed
// propositions plus script v1, and the deterministic fallback script.
type InitialDesigner interface {
	GenerateInitial(ctx context.Context, researchQuestion string, initialAngles []string) ([]models.PropositionProposal, *models.InterviewScript, error)
	MinimalScript(researchQuestion string, propositions []*models.Proposition, metrics models.ProjectMetrics, version int, generatedAfter string) *models.InterviewScript
}

// PromptPublisher pushes a rendered interviewer prompt to the voice runtime.
type PromptPublisher interface {
	PublishPrompt(ctx context.Context, agentID, prompt string) error
}

// CreateProjectInput contains the domain-level data needed to create a
// project. Transformed from the HTTP request body by the handler.
type CreateProjectInput struct {
	ID               string
	ResearchQuestion string
	InitialAngles    []string
	VoiceAgentID     string
}

// StartProjectInput selects the project to start and optionally overrides the
// voice agent the script is published to.
type StartProjectInput struct {
	ProjectID    string
	VoiceAgentID string
}

// StartResult is the outcome of a project start: the committed v1 script plus
// how to reach the interviewer.
type StartResult struct {
	Project     *models.Project
	Script      *models.InterviewScript
	SyncPending bool
	TalkToLink  string // empty when no voice agent is bound
}

// ProjectService owns the project lifecycle: creation, the start transition
// with its initial design, reads, and deletion.
type ProjectService struct {
	store     *store.Store
	designer  InitialDesigner
	guard     *safety.Guard
	publisher *events.Publisher
	bus       *events.Bus
	voice     PromptPublisher
	tuning    *config.TuningConfig
	logger    *slog.Logger
}

// NewProjectService creates a ProjectService.
func NewProjectService(st *store.Store, designer InitialDesigner, guard *safety.Guard,
	publisher *events.Publisher, bus *events.Bus, voicePublisher PromptPublisher,
	tuning *config.TuningConfig, logger *slog.Logger) *ProjectService {
	if st == nil {
		panic("NewProjectService: store must not be nil")
	}
	if designer == nil {
		panic("NewProjectService: designer must not be nil")
	}
	if guard == nil {
		panic("NewProjectService: guard must not be nil")
	}
	if publisher == nil {
		panic("NewProjectService: publisher must not be nil")
	}
	if bus == nil {
		panic("NewProjectService: bus must not be nil")
	}
	if voicePublisher == nil {
		panic("NewProjectService: voicePublisher must not be nil")
	}
	if tuning == nil {
		panic("NewProjectService: tuning must not be nil")
	}
	if logger == nil {
		panic("NewProjectService: logger must not be nil")
	}
	return &ProjectService{
		store:     st,
		designer:  designer,
		guard:     guard,
		publisher: publisher,
		bus:       bus,
		voice:     voicePublisher,
		tuning:    tuning,
		logger:    logger.With("component", "project_service"),
	}
}

// Create persists a new draft project.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, NewValidationError("id", "project id is required")
	}
	if !projectIDPattern.MatchString(id) {
		return nil, NewValidationError("id", "project id must start with a letter or digit and use only letters, digits, '-' and '_' (64 chars max)")
	}
	question := strings.TrimSpace(input.ResearchQuestion)
	if question == "" {
		return nil, NewValidationError("research_question", "research question is required")
	}

	project := &models.Project{
		ID:               id,
		ResearchQuestion: question,
		InitialAngles:    input.InitialAngles,
		VoiceAgentID:     strings.TrimSpace(input.VoiceAgentID),
		Status:           models.ProjectDraft,
		CreatedAt:        time.Now().UTC(),
		Metrics:          models.NewProjectMetrics(),
	}
	if err := s.store.CreateProject(project); err != nil {
		if errors.Is(err, store.ErrProjectExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.publisher.PublishProjectCreated(project.ID, project.ResearchQuestion)
	s.logger.Info("project created", "project_id", project.ID)
	return project, nil
}

// Get returns one project by id.
func (s *ProjectService) Get(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return project, nil
}

// List returns all projects.
func (s *ProjectService) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Snapshot returns the full project state: evidence, propositions, interviews
// and scripts. Backs the collection read endpoints.
func (s *ProjectService) Snapshot(ctx context.Context, projectID string) (*models.Snapshot, error) {
	snap, err := s.store.Load(projectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes a project and its sub-collections, then closes the
// project's event channel so stream subscribers drain out.
func (s *ProjectService) Delete(ctx context.Context, projectID string) error {
	if err := s.store.DeleteProject(projectID); err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.publisher.PublishProjectDeleted(projectID)
	s.bus.CloseProject(projectID)
	s.logger.Info("project deleted", "project_id", projectID)
	return nil
}

// Start moves a draft project into the running state: seed propositions and
// script v1 from the Designer, safety enforcement, prompt publication, and
// one atomic commit. Designer failure degrades to a seed proposition with a
// minimal script; publish failure flags the project for the republisher.
// Valid only on draft projects: committed script versions strictly increase,
// so a running project cannot be re-seeded from scratch.
func (s *ProjectService) Start(ctx context.Context, input StartProjectInput) (*StartResult, error) {
	project, err := s.store.GetProject(input.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Status != models.ProjectDraft {
		return nil, ErrAlreadyStarted
	}

	log := s.logger.With("project_id", project.ID)

	proposals, draft, err := s.designer.GenerateInitial(ctx, project.ResearchQuestion, project.InitialAngles)
	if err != nil {
		log.Error("initial design failed, seeding fallback proposition", "error", err)
		proposals = []models.PropositionProposal{seedProposal()}
		draft = nil
	}

	ids, err := s.store.ReservePropositionIDs(project.ID, len(proposals))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve proposition ids: %w", err)
	}
	props := make([]*models.Proposition, 0, len(proposals))
	refToID := make(map[string]string, len(proposals))
	for i, proposal := range proposals {
		p := &models.Proposition{
			ID:        ids[i],
			Factor:    proposal.Factor,
			Mechanism: proposal.Mechanism,
			Outcome:   proposal.Outcome,
			Status:    proposal.Status,
		}
		props = append(props, p)
		refToID[proposal.Ref] = p.ID
	}

	script := s.initialScript(draft, project, props, refToID)
	result := s.guard.Enforce(script, project.ResearchQuestion, props)
	script = result.Script
	if result.Status != safety.StatusOK {
		script.ChangesSummary = safety.MarkSummary(script.ChangesSummary, result.Status, len(result.Violations))
	}

	agentID := strings.TrimSpace(input.VoiceAgentID)
	if agentID == "" {
		agentID = project.VoiceAgentID
	}

	syncPending := false
	syncVersion := 0
	if agentID != "" {
		text := prompt.RenderInterviewer(script, s.tuning.MaxInterviewDurationMinutes)
		if err := s.voice.PublishPrompt(ctx, agentID, text); err != nil {
			log.Warn("prompt publish failed, deferring to republisher",
				"agent_id", agentID, "error", err)
			s.publisher.PublishPublishFailed(project.ID, script.Version, err)
			syncPending = true
			syncVersion = script.Version
		}
	}

	commit := &models.StoreDiff{
		NewPropositions:    props,
		Script:             script,
		SyncPending:        &syncPending,
		SyncPendingVersion: &syncVersion,
		VoiceAgentID:       &agentID,
		ProjectStatus:      models.ProjectRunning,
	}
	if err := s.store.Commit(project.ID, commit); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("failed to commit initial design: %w", err)
	}

	for _, p := range props {
		s.publisher.PublishNewProposition(project.ID, p)
	}
	s.publisher.PublishScriptUpdated(project.ID, script, syncPending, len(result.Violations))
	if result.Status != safety.StatusOK {
		s.publisher.PublishPromptSanitized(project.ID, script.Version, result.Status, len(result.Violations))
	}
	if result.TopicRedirectApplied {
		s.publisher.PublishTopicRedirect(project.ID, script.Version)
	}

	project, err = s.store.GetProject(project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload project: %w", err)
	}

	log.Info("project started",
		"propositions", len(props),
		"guard_status", result.Status,
		"sync_pending", syncPending)

	link := ""
	if agentID != "" {
		link = voice.TalkToLink(agentID)
	}
	return &StartResult{
		Project:     project,
		Script:      script,
		SyncPending: syncPending,
		TalkToLink:  link,
	}, nil
}

// initialScript turns the designer draft into script v1: symbolic section
// refs become reserved proposition ids, sections pointing nowhere (or
// repeating a proposition) are dropped, and a sectionless draft degrades to
// the minimal script.
func (s *ProjectService) initialScript(draft *models.InterviewScript, project *models.Project,
	props []*models.Proposition, refToID map[string]string) *models.InterviewScript {
	if draft == nil {
		return s.designer.MinimalScript(project.ResearchQuestion, props, project.Metrics, 1, "")
	}

	known := make(map[string]bool, len(props))
	for _, p := range props {
		known[p.ID] = true
	}
	seen := make(map[string]bool, len(draft.Sections))
	sections := make([]models.ScriptSection, 0, len(draft.Sections))
	for _, sec := range draft.Sections {
		if id, ok := refToID[sec.PropositionID]; ok {
			sec.PropositionID = id
		}
		if !known[sec.PropositionID] || seen[sec.PropositionID] {
			continue
		}
		seen[sec.PropositionID] = true
		sections = append(sections, sec)
	}
	if len(sections) == 0 {
		return s.designer.MinimalScript(project.ResearchQuestion, props, project.Metrics, 1, "")
	}
	draft.Sections = sections
	return draft
}

// seedProposal is the proposition a project falls back to when the initial
// design call fails: broad enough to bootstrap any research question.
func seedProposal() models.PropositionProposal {
	return models.PropositionProposal{
		Ref:       "p#1",
		Factor:    "Overall experience",
		Mechanism: "Personal perception of events and constraints",
		Outcome:   "Positive or negative sentiment during participation",
		Status:    models.StatusUntested,
	}
}
