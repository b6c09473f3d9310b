package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Analyst turns one interview transcript into an AnalysisDiff: extracted
// evidence, mappings against the live proposition set, newborn propositions
// and structural proposals (merges, subsumptions, prunes). It never assigns
// ids and never computes confidence or metrics; those belong to the
// reconciler.
type Analyst struct {
	oracle llm.Oracle
	cfg    *config.AgentRoleConfig
	logger *slog.Logger
}

// NewAnalyst creates an Analyst. Panics on nil dependencies (programmer error).
func NewAnalyst(oracle llm.Oracle, cfg *config.AgentRoleConfig, logger *slog.Logger) *Analyst {
	if oracle == nil {
		panic("NewAnalyst: oracle must not be nil")
	}
	if cfg == nil {
		panic("NewAnalyst: cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyst{
		oracle: oracle,
		cfg:    cfg,
		logger: logger.With("agent", config.RoleAnalyst),
	}
}

// Analyze runs one analysis pass over a finished interview. The returned diff
// carries symbolic refs ("e#1", "p#1") for new objects; malformed records in
// the model output are dropped rather than failing the call.
func (a *Analyst) Analyze(ctx context.Context, interviewID, transcript string, snap *models.Snapshot) (*models.AnalysisDiff, error) {
	system, user, err := prompt.BuildAnalyst(interviewID, transcript, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyst prompt: %w", err)
	}

	ctx, cancel := withRoleTimeout(ctx, a.cfg)
	defer cancel()

	raw, err := a.oracle.ChatJSON(ctx, roleRequest(a.cfg, system, user))
	if err != nil {
		return nil, fmt.Errorf("analyst call failed: %w", err)
	}

	diff, err := a.coerce(raw)
	if err != nil {
		return nil, err
	}
	diff.InterviewID = interviewID

	a.logger.Info("interview analyzed",
		"interview_id", interviewID,
		"new_evidence", len(diff.NewEvidence),
		"mappings", len(diff.Mappings),
		"new_propositions", len(diff.NewPropositions),
		"merges", len(diff.Merges),
		"subsumes", len(diff.Subsumes),
		"prunes", len(diff.Prunes))
	return diff, nil
}

// analysisEnvelope mirrors the analyst JSON contract. Every list is kept as
// raw messages so one malformed item cannot sink the rest. Models sometimes
// split mappings into the legacy evidence_mappings/retroactive_mappings pair;
// both are folded into the single mappings list. Keys for derived state
// (proposition_updates, metrics) are ignored entirely.
type analysisEnvelope struct {
	NewEvidence         []json.RawMessage `json:"new_evidence"`
	Mappings            []json.RawMessage `json:"mappings"`
	EvidenceMappings    []json.RawMessage `json:"evidence_mappings"`
	RetroactiveMappings []json.RawMessage `json:"retroactive_mappings"`
	NewPropositions     []json.RawMessage `json:"new_propositions"`
	Merges              []json.RawMessage `json:"merges"`
	Subsumes            []json.RawMessage `json:"subsumes"`
	Prunes              []json.RawMessage `json:"prunes"`
	Summary             string            `json:"summary"`
}

func (a *Analyst) coerce(raw json.RawMessage) (*models.AnalysisDiff, error) {
	var env analysisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode analysis envelope: %w", err)
	}

	diff := &models.AnalysisDiff{Summary: strings.TrimSpace(env.Summary)}

	dropped := 0
	for i, item := range env.NewEvidence {
		ev, ok := coerceEvidence(item, i)
		if !ok {
			dropped++
			continue
		}
		diff.NewEvidence = append(diff.NewEvidence, ev)
	}
	mappingItems := append(append(env.Mappings, env.EvidenceMappings...), env.RetroactiveMappings...)
	for _, item := range mappingItems {
		m, ok := coerceMapping(item)
		if !ok {
			dropped++
			continue
		}
		diff.Mappings = append(diff.Mappings, m)
	}
	for i, item := range env.NewPropositions {
		p, ok := coerceProposal(item, i)
		if !ok {
			dropped++
			continue
		}
		diff.NewPropositions = append(diff.NewPropositions, p)
	}
	for _, item := range env.Merges {
		m, ok := coerceMerge(item)
		if !ok {
			dropped++
			continue
		}
		diff.Merges = append(diff.Merges, m)
	}
	for _, item := range env.Subsumes {
		s, ok := coerceSubsume(item)
		if !ok {
			dropped++
			continue
		}
		diff.Subsumes = append(diff.Subsumes, s)
	}
	for _, item := range env.Prunes {
		p, ok := coercePrune(item)
		if !ok {
			dropped++
			continue
		}
		diff.Prunes = append(diff.Prunes, p)
	}

	if dropped > 0 {
		a.logger.Warn("dropped malformed analyst records", "dropped", dropped)
	}
	return diff, nil
}

// coerceEvidence keeps an evidence record only when every interpretive field
// is present. idx is zero-based and used to synthesize a missing ref.
func coerceEvidence(raw json.RawMessage, idx int) (models.ExtractedEvidence, bool) {
	var ev models.ExtractedEvidence
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.ExtractedEvidence{}, false
	}
	ev.Quote = strings.TrimSpace(ev.Quote)
	ev.Interpretation = strings.TrimSpace(ev.Interpretation)
	ev.Factor = strings.TrimSpace(ev.Factor)
	ev.Mechanism = strings.TrimSpace(ev.Mechanism)
	ev.Outcome = strings.TrimSpace(ev.Outcome)
	if ev.Quote == "" || ev.Interpretation == "" || ev.Factor == "" || ev.Mechanism == "" || ev.Outcome == "" {
		return models.ExtractedEvidence{}, false
	}
	if ev.Ref = strings.TrimSpace(ev.Ref); ev.Ref == "" {
		ev.Ref = fmt.Sprintf("e#%d", idx+1)
	}
	tags := make([]string, 0, len(ev.Tags))
	for _, t := range ev.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
		if len(tags) == MaxEvidenceTags {
			break
		}
	}
	ev.Tags = tags
	if ev.Language = strings.TrimSpace(ev.Language); ev.Language == "" {
		ev.Language = DefaultLanguage
	}
	return ev, true
}

func coerceMapping(raw json.RawMessage) (models.EvidenceMapping, bool) {
	var m models.EvidenceMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.EvidenceMapping{}, false
	}
	m.EvidenceRef = strings.TrimSpace(m.EvidenceRef)
	m.PropositionID = strings.TrimSpace(m.PropositionID)
	if m.EvidenceRef == "" || m.PropositionID == "" || !m.Relationship.Valid() {
		return models.EvidenceMapping{}, false
	}
	return m, true
}

func coerceProposal(raw json.RawMessage, idx int) (models.PropositionProposal, bool) {
	var p models.PropositionProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.PropositionProposal{}, false
	}
	p.Factor = strings.TrimSpace(p.Factor)
	p.Mechanism = strings.TrimSpace(p.Mechanism)
	p.Outcome = strings.TrimSpace(p.Outcome)
	if p.Factor == "" || p.Mechanism == "" || p.Outcome == "" {
		return models.PropositionProposal{}, false
	}
	if p.Ref = strings.TrimSpace(p.Ref); p.Ref == "" {
		p.Ref = fmt.Sprintf("p#%d", idx+1)
	}
	if p.Status != models.StatusUntested && p.Status != models.StatusExploring {
		p.Status = models.StatusUntested
	}
	return p, true
}

func coerceMerge(raw json.RawMessage) (models.MergeProposal, bool) {
	var m models.MergeProposal
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.MergeProposal{}, false
	}
	ids := make([]string, 0, len(m.SourceIDs))
	for _, id := range m.SourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	m.SourceIDs = ids
	m.Factor = strings.TrimSpace(m.Factor)
	m.Mechanism = strings.TrimSpace(m.Mechanism)
	m.Outcome = strings.TrimSpace(m.Outcome)
	if len(m.SourceIDs) < 2 || m.Factor == "" || m.Mechanism == "" || m.Outcome == "" {
		return models.MergeProposal{}, false
	}
	return m, true
}

func coerceSubsume(raw json.RawMessage) (models.SubsumeProposal, bool) {
	var s models.SubsumeProposal
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.SubsumeProposal{}, false
	}
	s.SpecializationID = strings.TrimSpace(s.SpecializationID)
	s.GeneralizationID = strings.TrimSpace(s.GeneralizationID)
	if s.SpecializationID == "" || s.GeneralizationID == "" || s.SpecializationID == s.GeneralizationID {
		return models.SubsumeProposal{}, false
	}
	return s, true
}

func coercePrune(raw json.RawMessage) (models.PruneProposal, bool) {
	var p models.PruneProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.PruneProposal{}, false
	}
	if p.PropositionID = strings.TrimSpace(p.PropositionID); p.PropositionID == "" {
		return models.PruneProposal{}, false
	}
	p.Reason = strings.TrimSpace(p.Reason)
	return p, true
}
