package config

// TuningConfig holds the knowledge-maintenance thresholds. Every value has a
// built-in default; user YAML overrides field by field.
type TuningConfig struct {
	// ConvergenceScoreThreshold gates the divergent → convergent mode flip
	// (strict >= comparison).
	ConvergenceScoreThreshold float64 `yaml:"convergence_score_threshold"`

	// NoveltyRateThreshold gates the mode flip (<= comparison).
	NoveltyRateThreshold float64 `yaml:"novelty_rate_threshold"`

	// MergeOverlapThreshold is the Jaccard similarity of supporting-evidence
	// sets at which two propositions merge.
	MergeOverlapThreshold float64 `yaml:"merge_overlap_threshold"`

	// PruneConfidenceThreshold: propositions below this confidence become
	// candidates for pruning.
	PruneConfidenceThreshold float64 `yaml:"prune_confidence_threshold"`

	// PruneMinInterviews: a prune candidate must have gone this many
	// consecutive interviews without new evidence.
	PruneMinInterviews int `yaml:"prune_min_interviews"`

	// MaxPropositionsInScript caps the number of sections per script.
	MaxPropositionsInScript int `yaml:"max_propositions_in_script"`

	// MaxInterviewDurationMinutes is advisory; it only appears in the
	// interviewer prompt text.
	MaxInterviewDurationMinutes int `yaml:"max_interview_duration_minutes"`
}

// DefaultTuningConfig returns the built-in tuning defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ConvergenceScoreThreshold:   0.6,
		NoveltyRateThreshold:        0.15,
		MergeOverlapThreshold:       0.6,
		PruneConfidenceThreshold:    0.15,
		PruneMinInterviews:          3,
		MaxPropositionsInScript:     8,
		MaxInterviewDurationMinutes: 10,
	}
}
