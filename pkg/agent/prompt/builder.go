package prompt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// briefingNote reminds the Designer that it sees aggregates, never quotes.
const briefingNote = "Briefing is aggregate only; no respondent-specific quotes or personal references."

// analystPayload is the Analyst's user-message body.
type analystPayload struct {
	Task                 string                `json:"task"`
	InterviewID          string                `json:"interview_id"`
	Transcript           string                `json:"transcript"`
	ExistingEvidence     []*models.Evidence    `json:"existing_evidence"`
	ExistingPropositions []*models.Proposition `json:"existing_propositions"`
}

// BuildAnalyst returns the system and user messages for one interview
// analysis. Only live propositions are exposed; weak and merged ones must not
// attract new mappings.
func BuildAnalyst(interviewID, transcript string, snap *models.Snapshot) (string, string, error) {
	payload := analystPayload{
		Task:                 "Analyze a single interview and return JSON only",
		InterviewID:          interviewID,
		Transcript:           transcript,
		ExistingEvidence:     nonNilEvidence(snap.Evidence),
		ExistingPropositions: nonNilPropositions(snap.LivePropositions()),
	}
	user, err := marshalPayload(payload)
	if err != nil {
		return "", "", err
	}
	return analystSystem, user, nil
}

// initialDesignPayload is the Designer's user-message body for script v1.
type initialDesignPayload struct {
	Task             string   `json:"task"`
	ResearchQuestion string   `json:"research_question"`
	InitialAngles    []string `json:"initial_angles"`
	MaxSections      int      `json:"max_sections"`
}

// BuildInitialDesign returns the messages for the first script generation.
func BuildInitialDesign(researchQuestion string, initialAngles []string, maxSections int) (string, string, error) {
	if initialAngles == nil {
		initialAngles = []string{}
	}
	payload := initialDesignPayload{
		Task:             "Generate initial propositions and first interview script",
		ResearchQuestion: researchQuestion,
		InitialAngles:    initialAngles,
		MaxSections:      maxSections,
	}
	user, err := marshalPayload(payload)
	if err != nil {
		return "", "", err
	}
	return designerSystem, user, nil
}

// propositionCoverage is one row of the Designer's evidence briefing.
type propositionCoverage struct {
	ID              string                   `json:"id"`
	Factor          string                   `json:"factor"`
	Mechanism       string                   `json:"mechanism"`
	Outcome         string                   `json:"outcome"`
	Status          models.PropositionStatus `json:"status"`
	Confidence      float64                  `json:"confidence"`
	SupportCount    int                      `json:"support_count"`
	ContradictCount int                      `json:"contradict_count"`
}

// evidenceBriefing is the aggregate view of the knowledge base the Designer
// receives instead of raw evidence.
type evidenceBriefing struct {
	TotalEvidence           int                   `json:"total_evidence"`
	InterviewsCount         int                   `json:"interviews_count"`
	UnassignedEvidenceCount int                   `json:"unassigned_evidence_count"`
	PropositionCoverage     []propositionCoverage `json:"proposition_coverage"`
	Note                    string                `json:"note"`
}

// scriptUpdatePayload is the Designer's user-message body after an interview.
type scriptUpdatePayload struct {
	Task             string                  `json:"task"`
	ResearchQuestion string                  `json:"research_question"`
	Propositions     []*models.Proposition   `json:"propositions"`
	EvidenceBriefing evidenceBriefing        `json:"evidence_briefing"`
	PreviousScript   *models.InterviewScript `json:"previous_script"`
	Metrics          models.ProjectMetrics   `json:"metrics"`
	MaxSections      int                     `json:"max_sections"`
}

// BuildScriptUpdate returns the messages for evolving the script after a
// reconciliation. The snapshot must already contain the committed changes.
func BuildScriptUpdate(snap *models.Snapshot, previous *models.InterviewScript, metrics models.ProjectMetrics, maxSections int) (string, string, error) {
	live := snap.LivePropositions()
	payload := scriptUpdatePayload{
		Task:             "Update interview script based on current state",
		ResearchQuestion: snap.Project.ResearchQuestion,
		Propositions:     nonNilPropositions(live),
		EvidenceBriefing: buildBriefing(live, snap.Evidence),
		PreviousScript:   previous,
		Metrics:          metrics,
		MaxSections:      maxSections,
	}
	user, err := marshalPayload(payload)
	if err != nil {
		return "", "", err
	}
	return designerSystem, user, nil
}

// buildBriefing aggregates the evidence into per-proposition coverage counts.
func buildBriefing(propositions []*models.Proposition, evidence []*models.Evidence) evidenceBriefing {
	coverage := make([]propositionCoverage, 0, len(propositions))
	mapped := make(map[string]bool)
	for _, p := range propositions {
		for _, id := range p.SupportingEvidence {
			mapped[id] = true
		}
		for _, id := range p.ContradictingEvidence {
			mapped[id] = true
		}
		coverage = append(coverage, propositionCoverage{
			ID:              p.ID,
			Factor:          p.Factor,
			Mechanism:       p.Mechanism,
			Outcome:         p.Outcome,
			Status:          p.Status,
			Confidence:      p.Confidence,
			SupportCount:    len(p.SupportingEvidence),
			ContradictCount: len(p.ContradictingEvidence),
		})
	}

	interviews := make(map[string]bool)
	unassigned := 0
	for _, e := range evidence {
		if e.InterviewID != "" {
			interviews[e.InterviewID] = true
		}
		if !mapped[e.ID] {
			unassigned++
		}
	}

	return evidenceBriefing{
		TotalEvidence:           len(evidence),
		InterviewsCount:         len(interviews),
		UnassignedEvidenceCount: unassigned,
		PropositionCoverage:     coverage,
		Note:                    briefingNote,
	}
}

// synthesisPayload is the Synthesizer's user-message body: the full dump.
type synthesisPayload struct {
	ResearchQuestion string                `json:"research_question"`
	Evidence         []*models.Evidence    `json:"evidence"`
	Propositions     []*models.Proposition `json:"propositions"`
	Metrics          models.ProjectMetrics `json:"metrics"`
	Interviews       int                   `json:"interviews"`
	ScriptVersions   int                   `json:"script_versions"`
}

// BuildSynthesis returns the messages for the report generation. Unlike the
// Designer, the Synthesizer sees everything, weak and merged included.
func BuildSynthesis(snap *models.Snapshot) (string, string, error) {
	payload := synthesisPayload{
		ResearchQuestion: snap.Project.ResearchQuestion,
		Evidence:         nonNilEvidence(snap.Evidence),
		Propositions:     nonNilPropositions(snap.Propositions),
		Metrics:          snap.Project.Metrics,
		Interviews:       len(snap.Interviews),
		ScriptVersions:   len(snap.Scripts),
	}
	user, err := marshalPayload(payload)
	if err != nil {
		return "", "", err
	}
	return synthesizerSystem, user, nil
}

// RenderInterviewer renders the voice-agent prompt for one script. The
// duration is advisory - it appears in the prompt text only.
func RenderInterviewer(script *models.InterviewScript, maxDurationMinutes int) string {
	var topicBlocks []string
	var probeLines []string
	for _, section := range script.Sections {
		topicBlocks = append(topicBlocks, strings.Join([]string{
			fmt.Sprintf("### Topic [%s, priority: %s]", section.Instruction, strings.ToUpper(string(section.Priority))),
			fmt.Sprintf("- Main question: %q", section.MainQuestion),
			fmt.Sprintf("- Probes: %s", strings.Join(section.Probes, " / ")),
			fmt.Sprintf("- Context: %s", section.Context),
		}, "\n"))
		probeLines = append(probeLines, fmt.Sprintf("- %s: %s (%s)",
			section.PropositionID, section.Instruction, section.Priority))
	}

	topics := noActiveTopics
	if len(topicBlocks) > 0 {
		topics = strings.Join(topicBlocks, "\n\n")
	}
	directives := defaultProbeInstructions
	if len(probeLines) > 0 {
		directives = strings.Join(probeLines, "\n")
	}

	rendered := interviewerBase
	rendered = strings.ReplaceAll(rendered, "{opening_question}", script.OpeningQuestion)
	rendered = strings.ReplaceAll(rendered, "{max_duration_minutes}", strconv.Itoa(maxDurationMinutes))
	rendered = strings.ReplaceAll(rendered, "{propositions_and_questions}", topics)
	rendered = strings.ReplaceAll(rendered, "{probe_instructions}", directives)
	rendered = strings.ReplaceAll(rendered, "{closing_question}", script.ClosingQuestion)
	rendered = strings.ReplaceAll(rendered, "{wildcard_question}", script.Wildcard)
	return rendered
}

func marshalPayload(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt payload: %w", err)
	}
	return string(data), nil
}

func nonNilEvidence(e []*models.Evidence) []*models.Evidence {
	if e == nil {
		return []*models.Evidence{}
	}
	return e
}

func nonNilPropositions(p []*models.Proposition) []*models.Proposition {
	if p == nil {
		return []*models.Proposition{}
	}
	return p
}
