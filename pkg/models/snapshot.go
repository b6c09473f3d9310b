package models

// Snapshot is a consistent point-in-time read of one project's full state.
// All collections are loaded in a single store transaction, so a snapshot
// never mixes pre- and post-commit data.
type Snapshot struct {
	Project      *Project
	Evidence     []*Evidence
	Propositions []*Proposition
	Interviews   []*Interview
	Scripts      []*InterviewScript
}

// LivePropositions returns the propositions that participate in mapping,
// merging and script sections.
func (s *Snapshot) LivePropositions() []*Proposition {
	live := make([]*Proposition, 0, len(s.Propositions))
	for _, p := range s.Propositions {
		if p.IsLive() {
			live = append(live, p)
		}
	}
	return live
}

// EvidenceByID returns an id-keyed view of the evidence collection.
func (s *Snapshot) EvidenceByID() map[string]*Evidence {
	m := make(map[string]*Evidence, len(s.Evidence))
	for _, e := range s.Evidence {
		m[e.ID] = e
	}
	return m
}

// PropositionByID returns an id-keyed view of the proposition collection.
func (s *Snapshot) PropositionByID() map[string]*Proposition {
	m := make(map[string]*Proposition, len(s.Propositions))
	for _, p := range s.Propositions {
		m[p.ID] = p
	}
	return m
}

// CurrentScript returns the latest committed script, nil before v1.
func (s *Snapshot) CurrentScript() *InterviewScript {
	if len(s.Scripts) == 0 {
		return nil
	}
	return s.Scripts[len(s.Scripts)-1]
}
