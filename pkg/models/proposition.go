package models

// PropositionStatus is the lifecycle state of a causal claim.
type PropositionStatus string

const (
	StatusUntested   PropositionStatus = "untested"
	StatusExploring  PropositionStatus = "exploring"
	StatusConfirmed  PropositionStatus = "confirmed"
	StatusChallenged PropositionStatus = "challenged"
	StatusSaturated  PropositionStatus = "saturated"
	StatusWeak       PropositionStatus = "weak"
	StatusMerged     PropositionStatus = "merged"
)

// Valid reports whether s is a known proposition status.
func (s PropositionStatus) Valid() bool {
	switch s {
	case StatusUntested, StatusExploring, StatusConfirmed, StatusChallenged,
		StatusSaturated, StatusWeak, StatusMerged:
		return true
	}
	return false
}

// Proposition is a causal claim of the form factor → mechanism → outcome,
// aggregated from evidence. Mutable: the Reconciler rewrites confidence,
// status, evidence sets and counters in place on every commit that touches it.
type Proposition struct {
	ID        string `json:"id"` // monotonic per project, "P001"
	Factor    string `json:"factor"`
	Mechanism string `json:"mechanism"`
	Outcome   string `json:"outcome"`

	// Confidence is the value produced by the last reconciliation; it is
	// never recomputed on read.
	Confidence float64           `json:"confidence"`
	Status     PropositionStatus `json:"status"`

	// Evidence id sets. Invariant: the two sets are disjoint and every id
	// exists in the evidence collection.
	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`

	FirstSeenInterview   string `json:"first_seen_interview,omitempty"`
	LastUpdatedInterview string `json:"last_updated_interview,omitempty"`

	// InterviewsWithoutNewEvidence counts consecutive reconciliations in
	// which this proposition's evidence sets did not grow.
	InterviewsWithoutNewEvidence int `json:"interviews_without_new_evidence"`

	// MergedInto names the surviving proposition when Status == merged.
	MergedInto string `json:"merged_into,omitempty"`
}

// IsLive reports whether the proposition participates in mapping, merging and
// script sections. Weak and merged propositions are out of play.
func (p *Proposition) IsLive() bool {
	return p.Status != StatusWeak && p.Status != StatusMerged
}

// CountsForConvergence reports whether the proposition belongs in the
// convergence-score denominator (untested propositions do not: they have
// never been probed).
func (p *Proposition) CountsForConvergence() bool {
	switch p.Status {
	case StatusExploring, StatusConfirmed, StatusChallenged, StatusSaturated:
		return true
	}
	return false
}

// Statement renders the claim as a single English sentence for prompts and
// reports.
func (p *Proposition) Statement() string {
	return p.Factor + " → " + p.Mechanism + " → " + p.Outcome
}
