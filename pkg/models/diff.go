package models

// Relationship classifies how one evidence item bears on one proposition.
type Relationship string

const (
	RelSupports    Relationship = "supports"
	RelContradicts Relationship = "contradicts"
)

// Valid reports whether r is a committable relationship. "irrelevant"
// classifications are dropped at coercion time and never reach a diff.
func (r Relationship) Valid() bool {
	return r == RelSupports || r == RelContradicts
}

// ExtractedEvidence is one evidence item proposed by the Analyst. Ref is the
// Analyst's symbolic handle ("e#1"); the Reconciler assigns the real id.
type ExtractedEvidence struct {
	Ref            string   `json:"ref"`
	Quote          string   `json:"quote"`
	Interpretation string   `json:"interpretation"`
	Factor         string   `json:"factor"`
	Mechanism      string   `json:"mechanism"`
	Outcome        string   `json:"outcome"`
	Tags           []string `json:"tags"`
	Language       string   `json:"language,omitempty"`
}

// EvidenceMapping links one evidence item (symbolic ref or committed id) to
// one proposition (committed id or symbolic "p#N" for a newborn). Mappings
// cover both directions of the analysis: fresh evidence against live
// propositions, and the retroactive scan of prior evidence against newborns.
type EvidenceMapping struct {
	EvidenceRef   string       `json:"evidence_ref"`
	PropositionID string       `json:"proposition_id"`
	Relationship  Relationship `json:"relationship"`
}

// PropositionProposal is a newborn proposition. Ref is the Analyst's symbolic
// handle ("p#1") used by mappings in the same diff.
type PropositionProposal struct {
	Ref       string            `json:"ref"`
	Factor    string            `json:"factor"`
	Mechanism string            `json:"mechanism"`
	Outcome   string            `json:"outcome"`
	Status    PropositionStatus `json:"status"` // untested or exploring
}

// MergeProposal fuses two or more live propositions into a new one whose text
// the Analyst authors. Sources flip to merged; the newborn inherits the union
// of their evidence sets.
type MergeProposal struct {
	SourceIDs []string `json:"source_ids"`
	Factor    string   `json:"factor"`
	Mechanism string   `json:"mechanism"`
	Outcome   string   `json:"outcome"`
}

// SubsumeProposal folds a strict specialization into its generalization:
// the specialization's support is unioned into the generalization and the
// specialization flips to merged.
type SubsumeProposal struct {
	SpecializationID string `json:"specialization_id"`
	GeneralizationID string `json:"generalization_id"`
}

// PruneProposal flags a proposition the Analyst considers dead weight. The
// Reconciler only honors it when the prune thresholds hold.
type PruneProposal struct {
	PropositionID string `json:"proposition_id"`
	Reason        string `json:"reason,omitempty"`
}

// AnalysisDiff is the Analyst's complete proposal for one interview. All ids
// for new objects are symbolic; the Reconciler resolves and validates them.
type AnalysisDiff struct {
	InterviewID     string                `json:"interview_id"`
	NewEvidence     []ExtractedEvidence   `json:"new_evidence"`
	Mappings        []EvidenceMapping     `json:"mappings"`
	NewPropositions []PropositionProposal `json:"new_propositions"`
	Merges          []MergeProposal       `json:"merges"`
	Subsumes        []SubsumeProposal     `json:"subsumes"`
	Prunes          []PruneProposal       `json:"prunes"`
	Summary         string                `json:"summary,omitempty"`
}

// StoreDiff is the validated, id-resolved result of reconciliation: exactly
// what one atomic commit applies. Nil/empty fields mean "no change".
type StoreDiff struct {
	NewEvidence         []*Evidence
	NewPropositions     []*Proposition
	UpdatedPropositions []*Proposition // full replacement values
	Interview           *Interview
	Script              *InterviewScript
	Metrics             *ProjectMetrics

	// MarkConversation records a processed conversation id for idempotency.
	MarkConversation string

	// Publish-state transitions; nil pointers leave the field untouched.
	SyncPending        *bool
	SyncPendingVersion *int
	ReportStale        *bool
	Report             *string
	VoiceAgentID       *string
	ProjectStatus      ProjectStatus // "" = unchanged
}

// Empty reports whether the diff would change nothing.
func (d *StoreDiff) Empty() bool {
	return d == nil ||
		(len(d.NewEvidence) == 0 && len(d.NewPropositions) == 0 &&
			len(d.UpdatedPropositions) == 0 && d.Interview == nil &&
			d.Script == nil && d.Metrics == nil && d.MarkConversation == "" &&
			d.SyncPending == nil && d.SyncPendingVersion == nil &&
			d.ReportStale == nil && d.Report == nil && d.VoiceAgentID == nil &&
			d.ProjectStatus == "")
}
