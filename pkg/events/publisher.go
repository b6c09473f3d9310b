package events

import (
	"time"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Publisher emits typed events onto the bus. One method per event type; each
// builds the payload, stamps the base fields and fans out. Emission is
// fire-and-forget: a subscriber that cannot keep up loses old events, the
// publisher never blocks on it.
type Publisher struct {
	bus *Bus
}

// NewPublisher creates a Publisher. Panics on nil bus (programmer error).
func NewPublisher(bus *Bus) *Publisher {
	if bus == nil {
		panic("events.NewPublisher: bus must not be nil")
	}
	return &Publisher{bus: bus}
}

// PublishNewEvidence announces one committed evidence record.
func (p *Publisher) PublishNewEvidence(projectID string, e *models.Evidence) {
	p.bus.publish(projectID, EventTypeNewEvidence, NewEvidencePayload{
		BasePayload: base(EventTypeNewEvidence, projectID),
		EvidenceID:  e.ID,
		InterviewID: e.InterviewID,
		Quote:       e.Quote,
		Factor:      e.Factor,
		Mechanism:   e.Mechanism,
		Outcome:     e.Outcome,
	})
}

// PublishNewProposition announces a newborn proposition or merge survivor.
func (p *Publisher) PublishNewProposition(projectID string, prop *models.Proposition) {
	p.bus.publish(projectID, EventTypeNewProposition, NewPropositionPayload{
		BasePayload:   base(EventTypeNewProposition, projectID),
		PropositionID: prop.ID,
		Factor:        prop.Factor,
		Mechanism:     prop.Mechanism,
		Outcome:       prop.Outcome,
		Status:        prop.Status,
		Confidence:    prop.Confidence,
	})
}

// PublishPropositionUpdated announces a state change on an existing
// proposition.
func (p *Publisher) PublishPropositionUpdated(projectID string, prop *models.Proposition) {
	p.bus.publish(projectID, EventTypePropositionUpdated, PropositionUpdatedPayload{
		BasePayload:        base(EventTypePropositionUpdated, projectID),
		PropositionID:      prop.ID,
		Status:             prop.Status,
		Confidence:         prop.Confidence,
		SupportingCount:    len(prop.SupportingEvidence),
		ContradictingCount: len(prop.ContradictingEvidence),
		MergedInto:         prop.MergedInto,
	})
}

// PublishPropositionMerged announces one applied merge or subsume.
func (p *Publisher) PublishPropositionMerged(projectID string, sourceIDs []string, survivorID string) {
	p.bus.publish(projectID, EventTypePropositionMerged, PropositionMergedPayload{
		BasePayload: base(EventTypePropositionMerged, projectID),
		SourceIDs:   sourceIDs,
		SurvivorID:  survivorID,
	})
}

// PublishPropositionPruned announces a proposition flipped to weak.
func (p *Publisher) PublishPropositionPruned(projectID, propositionID string) {
	p.bus.publish(projectID, EventTypePropositionPruned, PropositionPrunedPayload{
		BasePayload:   base(EventTypePropositionPruned, projectID),
		PropositionID: propositionID,
	})
}

// PublishScriptUpdated announces a committed script version.
func (p *Publisher) PublishScriptUpdated(projectID string, script *models.InterviewScript, syncPending bool, safetyViolations int) {
	p.bus.publish(projectID, EventTypeScriptUpdated, ScriptUpdatedPayload{
		BasePayload:      base(EventTypeScriptUpdated, projectID),
		Version:          script.Version,
		ChangesSummary:   script.ChangesSummary,
		Mode:             string(script.Mode),
		SyncPending:      syncPending,
		SafetyStatus:     script.GuardStatus,
		SafetyViolations: safetyViolations,
	})
}

// PublishPromptSanitized announces that the safety guard rewrote
// interviewer-facing text.
func (p *Publisher) PublishPromptSanitized(projectID string, scriptVersion int, status string, violations int) {
	p.bus.publish(projectID, EventTypePromptSanitized, PromptSanitizedPayload{
		BasePayload:     base(EventTypePromptSanitized, projectID),
		ScriptVersion:   scriptVersion,
		Status:          status,
		ViolationsCount: violations,
	})
}

// PublishTopicRedirect announces that a drifting section was redirected back
// to the research question.
func (p *Publisher) PublishTopicRedirect(projectID string, scriptVersion int) {
	p.bus.publish(projectID, EventTypeTopicRedirect, TopicRedirectPayload{
		BasePayload:   base(EventTypeTopicRedirect, projectID),
		ScriptVersion: scriptVersion,
	})
}

// PublishAnalysisFailed announces a transcript that produced no knowledge
// commit.
func (p *Publisher) PublishAnalysisFailed(projectID, conversationID, reason string, rejections int) {
	p.bus.publish(projectID, EventTypeAnalysisFailed, AnalysisFailedPayload{
		BasePayload:    base(EventTypeAnalysisFailed, projectID),
		ConversationID: conversationID,
		Reason:         reason,
		Rejections:     rejections,
	})
}

// PublishPublishFailed announces a failed voice-platform prompt update.
func (p *Publisher) PublishPublishFailed(projectID string, scriptVersion int, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	p.bus.publish(projectID, EventTypePublishFailed, PublishFailedPayload{
		BasePayload:   base(EventTypePublishFailed, projectID),
		ScriptVersion: scriptVersion,
		Error:         msg,
	})
}

// PublishReportStale announces that the stored report no longer reflects the
// knowledge base.
func (p *Publisher) PublishReportStale(projectID string, status models.ProjectStatus) {
	p.bus.publish(projectID, EventTypeReportStale, ReportStalePayload{
		BasePayload: base(EventTypeReportStale, projectID),
		Status:      status,
	})
}

// PublishReportReady announces a completed synthesis.
func (p *Publisher) PublishReportReady(projectID string, generatedAt time.Time) {
	p.bus.publish(projectID, EventTypeReportReady, ReportReadyPayload{
		BasePayload: base(EventTypeReportReady, projectID),
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// PublishProjectCreated announces a new project.
func (p *Publisher) PublishProjectCreated(projectID, researchQuestion string) {
	p.bus.publish(projectID, EventTypeProjectCreated, ProjectCreatedPayload{
		BasePayload:      base(EventTypeProjectCreated, projectID),
		ResearchQuestion: researchQuestion,
	})
}

// PublishProjectDeleted announces a deleted project. Callers should
// CloseProject on the bus afterwards.
func (p *Publisher) PublishProjectDeleted(projectID string) {
	p.bus.publish(projectID, EventTypeProjectDeleted, ProjectDeletedPayload{
		BasePayload: base(EventTypeProjectDeleted, projectID),
	})
}
