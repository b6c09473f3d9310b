package models

import "time"

// ScriptInstruction tells the interviewer how to treat a proposition's topic.
type ScriptInstruction string

const (
	// InstructionExplore: open questioning, the claim is young.
	InstructionExplore ScriptInstruction = "EXPLORE"
	// InstructionVerify: targeted confirmation of a mid-confidence claim.
	InstructionVerify ScriptInstruction = "VERIFY"
	// InstructionChallenge: actively seek disconfirming accounts.
	InstructionChallenge ScriptInstruction = "CHALLENGE"
	// InstructionSaturated: do-not-probe guard for settled claims.
	InstructionSaturated ScriptInstruction = "SATURATED"
)

// Valid reports whether i is a known instruction.
func (i ScriptInstruction) Valid() bool {
	switch i {
	case InstructionExplore, InstructionVerify, InstructionChallenge, InstructionSaturated:
		return true
	}
	return false
}

// ScriptPriority orders sections within a script.
type ScriptPriority string

const (
	PriorityHigh   ScriptPriority = "high"
	PriorityMedium ScriptPriority = "medium"
	PriorityLow    ScriptPriority = "low"
)

// Valid reports whether p is a known priority.
func (p ScriptPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the sort rank of the priority, high first.
func (p ScriptPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ScriptSection is one topic block of an interview script, bound to exactly
// one live proposition.
type ScriptSection struct {
	PropositionID string            `json:"proposition_id"`
	Priority      ScriptPriority    `json:"priority"`
	Instruction   ScriptInstruction `json:"instruction"`
	MainQuestion  string            `json:"main_question"`
	Probes        []string          `json:"probes"` // 2-3 follow-up probes
	Context       string            `json:"context,omitempty"`
}

// InterviewScript is an immutable Designer-produced interview guide. Only one
// version is active per project at any time; versions strictly increase.
type InterviewScript struct {
	Version int `json:"version"` // starts at 1

	// GeneratedAfterInterview is the interview that triggered this version,
	// empty for v1.
	GeneratedAfterInterview string `json:"generated_after_interview,omitempty"`

	ResearchQuestion string          `json:"research_question"`
	OpeningQuestion  string          `json:"opening_question"`
	Sections         []ScriptSection `json:"sections"`
	ClosingQuestion  string          `json:"closing_question"`
	Wildcard         string          `json:"wildcard"`

	Mode             ResearchMode `json:"mode"`
	ConvergenceScore float64      `json:"convergence_score"`
	NoveltyRate      float64      `json:"novelty_rate"`

	ChangesSummary string `json:"changes_summary,omitempty"`

	// GuardStatus records what the safety guard did: "ok", "sanitized" or
	// "fallback".
	GuardStatus string    `json:"guard_status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
