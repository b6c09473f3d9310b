// Package models defines the domain types shared across the engine:
// projects, evidence, propositions, interviews, scripts, and the diff
// structures that flow from the Analyst through the Reconciler into the Store.
package models

import "time"

// ProjectStatus tracks the research project lifecycle.
type ProjectStatus string

const (
	// ProjectDraft: created but no script published yet.
	ProjectDraft ProjectStatus = "draft"
	// ProjectRunning: script v1 has been generated; interviews are flowing.
	ProjectRunning ProjectStatus = "running"
	// ProjectDone: a final report has been synthesized.
	ProjectDone ProjectStatus = "done"
)

// ResearchMode is the operating regime of a project: divergent projects
// explore aggressively, convergent projects bias toward verification and
// challenge.
type ResearchMode string

const (
	ModeDivergent  ResearchMode = "divergent"
	ModeConvergent ResearchMode = "convergent"
)

// ProjectMetrics holds the convergence measures recomputed after every
// reconciliation.
type ProjectMetrics struct {
	ConvergenceScore float64      `json:"convergence_score"`
	NoveltyRate      float64      `json:"novelty_rate"`
	Mode             ResearchMode `json:"mode"`
}

// Project is the root entity. It owns the four sub-collections (evidence,
// propositions, interviews, scripts); those are persisted separately by the
// store and assembled into a Snapshot on load.
type Project struct {
	ID               string        `json:"id"`
	ResearchQuestion string        `json:"research_question"`
	InitialAngles    []string      `json:"initial_angles,omitempty"`
	VoiceAgentID     string        `json:"voice_agent_id,omitempty"`
	Status           ProjectStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`

	// CurrentScriptVersion is the highest committed script version, 0 before v1.
	CurrentScriptVersion int            `json:"current_script_version"`
	Metrics              ProjectMetrics `json:"metrics"`

	// SyncPending is set when script publication to the voice runtime failed;
	// the republisher retries until the flagged version (or a newer one) is out.
	SyncPending              bool `json:"sync_pending,omitempty"`
	SyncPendingScriptVersion int  `json:"sync_pending_script_version,omitempty"`

	// ReportStale is set when new evidence was committed after the last report.
	ReportStale       bool       `json:"report_stale,omitempty"`
	Report            string     `json:"report,omitempty"`
	ReportGeneratedAt *time.Time `json:"report_generated_at,omitempty"`
}

// NewProjectMetrics returns the metrics of a freshly created project:
// nothing confirmed, everything novel, divergent regime.
func NewProjectMetrics() ProjectMetrics {
	return ProjectMetrics{
		ConvergenceScore: 0,
		NoveltyRate:      1,
		Mode:             ModeDivergent,
	}
}
