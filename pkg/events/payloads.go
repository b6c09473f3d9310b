package events

import (
	"time"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// BasePayload carries the fields every event shares. Embedded by all typed
// payloads so subscribers can route on "type" before decoding the rest.
type BasePayload struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

func base(eventType, projectID string) BasePayload {
	return BasePayload{
		Type:      eventType,
		ProjectID: projectID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewEvidencePayload announces one committed evidence record.
type NewEvidencePayload struct {
	BasePayload
	EvidenceID  string `json:"evidence_id"`
	InterviewID string `json:"interview_id"`
	Quote       string `json:"quote"`
	Factor      string `json:"factor"`
	Mechanism   string `json:"mechanism"`
	Outcome     string `json:"outcome"`
}

// NewPropositionPayload announces a newborn proposition, including merge
// survivors.
type NewPropositionPayload struct {
	BasePayload
	PropositionID string                   `json:"proposition_id"`
	Factor        string                   `json:"factor"`
	Mechanism     string                   `json:"mechanism"`
	Outcome       string                   `json:"outcome"`
	Status        models.PropositionStatus `json:"status"`
	Confidence    float64                  `json:"confidence"`
}

// PropositionUpdatedPayload announces a state change on an existing
// proposition: evidence-set edits, confidence moves, status transitions or a
// retargeted merged_into pointer.
type PropositionUpdatedPayload struct {
	BasePayload
	PropositionID      string                   `json:"proposition_id"`
	Status             models.PropositionStatus `json:"status"`
	Confidence         float64                  `json:"confidence"`
	SupportingCount    int                      `json:"supporting_count"`
	ContradictingCount int                      `json:"contradicting_count"`
	MergedInto         string                   `json:"merged_into,omitempty"`
}

// PropositionMergedPayload announces one applied merge or subsume.
type PropositionMergedPayload struct {
	BasePayload
	SourceIDs  []string `json:"source_ids"`
	SurvivorID string   `json:"survivor_id"`
}

// PropositionPrunedPayload announces a proposition flipped to weak.
type PropositionPrunedPayload struct {
	BasePayload
	PropositionID string `json:"proposition_id"`
}

// ScriptUpdatedPayload announces a committed script version.
type ScriptUpdatedPayload struct {
	BasePayload
	Version          int    `json:"version"`
	ChangesSummary   string `json:"changes_summary"`
	Mode             string `json:"mode"`
	SyncPending      bool   `json:"sync_pending"`
	SafetyStatus     string `json:"prompt_safety_status"`
	SafetyViolations int    `json:"prompt_safety_violations_count"`
}

// PromptSanitizedPayload announces that the safety guard rewrote or replaced
// interviewer-facing text before the script was committed.
type PromptSanitizedPayload struct {
	BasePayload
	ScriptVersion   int    `json:"script_version"`
	Status          string `json:"status"` // sanitized or fallback
	ViolationsCount int    `json:"violations_count"`
}

// TopicRedirectPayload announces that a drifting section was pointed back at
// the research question.
type TopicRedirectPayload struct {
	BasePayload
	ScriptVersion int `json:"script_version"`
}

// AnalysisFailedPayload announces a transcript that produced no knowledge
// commit. The conversation stays unprocessed and may be retried.
type AnalysisFailedPayload struct {
	BasePayload
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
	Rejections     int    `json:"rejections,omitempty"`
}

// PublishFailedPayload announces that the voice platform rejected a prompt
// update; the project is marked sync_pending for the republisher.
type PublishFailedPayload struct {
	BasePayload
	ScriptVersion int    `json:"script_version"`
	Error         string `json:"error"`
}

// ReportStalePayload announces that new interviews arrived after a report
// was generated.
type ReportStalePayload struct {
	BasePayload
	Status models.ProjectStatus `json:"status"`
}

// ReportReadyPayload announces a completed synthesis.
type ReportReadyPayload struct {
	BasePayload
	GeneratedAt string `json:"generated_at"` // RFC3339Nano
}

// ProjectCreatedPayload announces a new project.
type ProjectCreatedPayload struct {
	BasePayload
	ResearchQuestion string `json:"research_question"`
}

// ProjectDeletedPayload announces a deleted project. It is the last event on
// the project's channel.
type ProjectDeletedPayload struct {
	BasePayload
}
