package reconciler

import "github.com/eidetic-ai/eidetic/pkg/models"

// Rejection kinds, one per diff record family.
const (
	RejectEvidence    = "evidence"
	RejectMapping     = "mapping"
	RejectProposition = "proposition"
	RejectMerge       = "merge"
	RejectSubsume     = "subsume"
	RejectPrune       = "prune"
)

// Rejection is one dropped diff record with the reason it was dropped.
type Rejection struct {
	Kind   string
	Detail string
}

// MergeRecord is one applied merge or subsume, in application order.
// SurvivorID is the apply-time target; Merged holds the compressed pointers.
type MergeRecord struct {
	SourceIDs  []string
	SurvivorID string
}

// Report describes what one reconciliation applied and what it refused, in
// application order. The pipeline turns it into events and failure records.
type Report struct {
	InterviewID string

	NewEvidenceIDs    []string
	NewPropositionIDs []string // includes merge survivors
	UpdatedIDs        []string // pre-existing propositions whose state changed

	// Merges lists applied merges and subsumes in order; Merged maps every
	// source retired this pass to its final survivor after transitive
	// compression.
	Merges []MergeRecord
	Merged map[string]string
	Pruned []string

	Rejections []Rejection
	Metrics    models.ProjectMetrics
}

// Invalid reports whether any diff record was dropped. Valid evidence is
// committed regardless.
func (r *Report) Invalid() bool {
	return len(r.Rejections) > 0
}

func (r *Report) reject(kind, detail string) {
	r.Rejections = append(r.Rejections, Rejection{Kind: kind, Detail: detail})
}
