package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Designer produces interview scripts: the initial seed (propositions plus
// script v1) when a project starts, and one new immutable version after every
// analyzed interview. A deterministic MinimalScript fallback keeps the
// interview loop alive when the model call fails.
type Designer struct {
	oracle      llm.Oracle
	cfg         *config.AgentRoleConfig
	maxSections int
	logger      *slog.Logger
}

// NewDesigner creates a Designer. Panics on nil dependencies (programmer error).
func NewDesigner(oracle llm.Oracle, cfg *config.AgentRoleConfig, tuning *config.TuningConfig, logger *slog.Logger) *Designer {
	if oracle == nil {
		panic("NewDesigner: oracle must not be nil")
	}
	if cfg == nil {
		panic("NewDesigner: cfg must not be nil")
	}
	if tuning == nil {
		panic("NewDesigner: tuning must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Designer{
		oracle:      oracle,
		cfg:         cfg,
		maxSections: tuning.MaxPropositionsInScript,
		logger:      logger.With("agent", config.RoleDesigner),
	}
}

// initialEnvelope is the designer's response to an initial-design request.
// Some models emit the proposition list under new_propositions; both keys are
// accepted.
type initialEnvelope struct {
	Propositions    []json.RawMessage `json:"propositions"`
	NewPropositions []json.RawMessage `json:"new_propositions"`
	Script          json.RawMessage   `json:"script"`
}

// updateEnvelope is the designer's response to a script-update request. When
// the script key is absent the whole payload is treated as the script object.
type updateEnvelope struct {
	Script json.RawMessage `json:"script"`
}

// GenerateInitial asks the model for seed propositions and script v1.
// Proposition refs are symbolic; the caller assigns real ids before commit.
func (d *Designer) GenerateInitial(ctx context.Context, researchQuestion string, initialAngles []string) ([]models.PropositionProposal, *models.InterviewScript, error) {
	system, user, err := prompt.BuildInitialDesign(researchQuestion, initialAngles, d.maxSections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build initial design prompt: %w", err)
	}

	ctx, cancel := withRoleTimeout(ctx, d.cfg)
	defer cancel()

	raw, err := d.oracle.ChatJSON(ctx, roleRequest(d.cfg, system, user))
	if err != nil {
		return nil, nil, fmt.Errorf("initial design call failed: %w", err)
	}

	var env initialEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode initial design envelope: %w", err)
	}

	items := env.Propositions
	if len(items) == 0 {
		items = env.NewPropositions
	}
	proposals := make([]models.PropositionProposal, 0, len(items))
	for i, item := range items {
		p, ok := coerceProposal(item, i)
		if !ok {
			continue
		}
		proposals = append(proposals, p)
	}
	if len(proposals) == 0 {
		return nil, nil, fmt.Errorf("initial design returned no usable propositions")
	}

	script := d.parseScript(envScript(env.Script, raw), researchQuestion, 1, models.NewProjectMetrics(), "", nil)
	d.logger.Info("initial design generated",
		"propositions", len(proposals),
		"sections", len(script.Sections))
	return proposals, script, nil
}

// UpdateScript asks the model for the next script version from a post-commit
// snapshot. The new version is always snapshot.Project.CurrentScriptVersion+1
// and carries the committed metrics; generatedAfter names the interview that
// triggered it.
func (d *Designer) UpdateScript(ctx context.Context, snap *models.Snapshot, generatedAfter string) (*models.InterviewScript, error) {
	previous := snap.CurrentScript()
	metrics := snap.Project.Metrics

	system, user, err := prompt.BuildScriptUpdate(snap, previous, metrics, d.maxSections)
	if err != nil {
		return nil, fmt.Errorf("failed to build script update prompt: %w", err)
	}

	ctx, cancel := withRoleTimeout(ctx, d.cfg)
	defer cancel()

	raw, err := d.oracle.ChatJSON(ctx, roleRequest(d.cfg, system, user))
	if err != nil {
		return nil, fmt.Errorf("script update call failed: %w", err)
	}

	var env updateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode script update envelope: %w", err)
	}

	version := snap.Project.CurrentScriptVersion + 1
	script := d.parseScript(envScript(env.Script, raw), snap.Project.ResearchQuestion, version, metrics, generatedAfter, snap.Propositions)
	d.logger.Info("script updated",
		"project_id", snap.Project.ID,
		"version", version,
		"sections", len(script.Sections),
		"mode", metrics.Mode)
	return script, nil
}

// MinimalScript builds a deterministic fallback script without an LLM call:
// one EXPLORE section per live proposition, first section high priority. Used
// when the designer call fails so a failed model never stalls the interview
// loop.
func (d *Designer) MinimalScript(researchQuestion string, propositions []*models.Proposition, metrics models.ProjectMetrics, version int, generatedAfter string) *models.InterviewScript {
	limit := len(propositions)
	if d.maxSections > 0 && limit > d.maxSections {
		limit = d.maxSections
	}
	sections := make([]models.ScriptSection, 0, limit)
	for i, p := range propositions[:limit] {
		priority := models.PriorityMedium
		if i == 0 {
			priority = models.PriorityHigh
		}
		sections = append(sections, models.ScriptSection{
			PropositionID: p.ID,
			Priority:      priority,
			Instruction:   models.InstructionExplore,
			MainQuestion:  fmt.Sprintf("Could you tell me more about %s?", strings.ToLower(p.Factor)),
			Probes:        []string{"Can you give a concrete example?", "What happened next?"},
			Context:       "Fallback section",
		})
	}
	return &models.InterviewScript{
		Version:                 version,
		GeneratedAfterInterview: generatedAfter,
		ResearchQuestion:        researchQuestion,
		OpeningQuestion:         prompt.FallbackOpeningQuestion,
		Sections:                sections,
		ClosingQuestion:         prompt.DefaultClosingQuestion,
		Wildcard:                prompt.DefaultWildcardQuestion,
		Mode:                    metrics.Mode,
		ConvergenceScore:        metrics.ConvergenceScore,
		NoveltyRate:             metrics.NoveltyRate,
		ChangesSummary:          "Fallback script generated",
		CreatedAt:               time.Now().UTC(),
	}
}

// envScript picks the script object out of an envelope, falling back to the
// whole response when the model skipped the wrapper.
func envScript(script, whole json.RawMessage) json.RawMessage {
	if len(script) > 0 && string(script) != "null" {
		return script
	}
	return whole
}

// scriptDoc is the tolerant wire shape of one script object.
type scriptDoc struct {
	OpeningQuestion string            `json:"opening_question"`
	Sections        []json.RawMessage `json:"sections"`
	ClosingQuestion string            `json:"closing_question"`
	Wildcard        string            `json:"wildcard"`
	ChangesSummary  string            `json:"changes_summary"`
}

// sectionDoc is the tolerant wire shape of one script section. Probes stay
// raw so a single non-string entry does not sink the section.
type sectionDoc struct {
	PropositionID string            `json:"proposition_id"`
	Priority      string            `json:"priority"`
	Instruction   string            `json:"instruction"`
	MainQuestion  string            `json:"main_question"`
	Probes        []json.RawMessage `json:"probes"`
	Context       string            `json:"context"`
}

// parseScript coerces a model-authored script object into an InterviewScript,
// applying defaults field by field and dropping sections that are not JSON
// objects. props is the snapshot's proposition collection, used to drop
// sections on retired propositions and to steer the section-cap drop order;
// nil is fine for v1, whose sections carry symbolic refs.
func (d *Designer) parseScript(raw json.RawMessage, researchQuestion string, version int, metrics models.ProjectMetrics, generatedAfter string, props []*models.Proposition) *models.InterviewScript {
	var doc scriptDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		d.logger.Warn("script object malformed, using empty script", "version", version, "error", err)
		doc = scriptDoc{}
	}

	sections := make([]models.ScriptSection, 0, len(doc.Sections))
	dropped := 0
	for _, item := range doc.Sections {
		sec, ok := coerceSection(item)
		if !ok {
			dropped++
			continue
		}
		sections = append(sections, sec)
	}
	if dropped > 0 {
		d.logger.Warn("dropped malformed script sections", "version", version, "dropped", dropped)
	}
	sections = filterSections(sections, props)
	sections = capSections(sections, d.maxSections, lastUpdatedIndex(props))

	opening := strings.TrimSpace(doc.OpeningQuestion)
	if opening == "" {
		opening = prompt.DefaultOpeningQuestion
	}
	closing := strings.TrimSpace(doc.ClosingQuestion)
	if closing == "" {
		closing = prompt.DefaultClosingQuestion
	}
	wildcard := strings.TrimSpace(doc.Wildcard)
	if wildcard == "" {
		wildcard = prompt.DefaultWildcardQuestion
	}
	changes := strings.TrimSpace(doc.ChangesSummary)
	if changes == "" {
		changes = "Script updated"
	}

	return &models.InterviewScript{
		Version:                 version,
		GeneratedAfterInterview: generatedAfter,
		ResearchQuestion:        researchQuestion,
		OpeningQuestion:         opening,
		Sections:                sections,
		ClosingQuestion:         closing,
		Wildcard:                wildcard,
		Mode:                    metrics.Mode,
		ConvergenceScore:        metrics.ConvergenceScore,
		NoveltyRate:             metrics.NoveltyRate,
		ChangesSummary:          changes,
		CreatedAt:               time.Now().UTC(),
	}
}

func coerceSection(raw json.RawMessage) (models.ScriptSection, bool) {
	var doc sectionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.ScriptSection{}, false
	}

	sec := models.ScriptSection{
		PropositionID: strings.TrimSpace(doc.PropositionID),
		Priority:      models.ScriptPriority(strings.ToLower(strings.TrimSpace(doc.Priority))),
		Instruction:   models.ScriptInstruction(strings.ToUpper(strings.TrimSpace(doc.Instruction))),
		MainQuestion:  strings.TrimSpace(doc.MainQuestion),
		Context:       strings.TrimSpace(doc.Context),
	}
	if sec.PropositionID == "" {
		sec.PropositionID = "P000"
	}
	if !sec.Priority.Valid() {
		sec.Priority = models.PriorityMedium
	}
	if !sec.Instruction.Valid() {
		sec.Instruction = models.InstructionExplore
	}
	if sec.MainQuestion == "" {
		sec.MainQuestion = prompt.DefaultMainQuestion
	}

	probes := make([]string, 0, MaxProbesPerSection)
	for _, p := range doc.Probes {
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		probes = append(probes, s)
		if len(probes) == MaxProbesPerSection {
			break
		}
	}
	sec.Probes = probes
	return sec, true
}

// instructionDropRank orders instructions for the section cap: settled topics
// go first, open exploration is kept the longest.
func instructionDropRank(i models.ScriptInstruction) int {
	switch i {
	case models.InstructionSaturated:
		return 0
	case models.InstructionVerify:
		return 1
	case models.InstructionChallenge:
		return 2
	default:
		return 3
	}
}

// capSections enforces the per-script section limit. Drop order: saturated
// before verify before challenge before explore, then lowest priority, then
// the proposition updated longest ago, then the later section. Survivors keep
// their original order.
func capSections(sections []models.ScriptSection, max int, lastUpdated map[string]string) []models.ScriptSection {
	if max <= 0 || len(sections) <= max {
		return sections
	}

	order := make([]int, len(sections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := sections[order[a]], sections[order[b]]
		if ra, rb := instructionDropRank(sa.Instruction), instructionDropRank(sb.Instruction); ra != rb {
			return ra < rb
		}
		if ra, rb := sa.Priority.Rank(), sb.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if lua, lub := lastUpdated[sa.PropositionID], lastUpdated[sb.PropositionID]; lua != lub {
			return lua < lub
		}
		return order[a] > order[b]
	})

	drop := make(map[int]bool, len(sections)-max)
	for _, idx := range order[:len(sections)-max] {
		drop[idx] = true
	}
	kept := make([]models.ScriptSection, 0, max)
	for i, sec := range sections {
		if !drop[i] {
			kept = append(kept, sec)
		}
	}
	return kept
}

// filterSections drops sections that repeat a proposition or probe one that
// is no longer live. Sections without a known proposition id pass through:
// they are exploratory, not stale. Published scripts carry at most one
// section per live proposition.
func filterSections(sections []models.ScriptSection, props []*models.Proposition) []models.ScriptSection {
	byID := make(map[string]*models.Proposition, len(props))
	for _, p := range props {
		byID[p.ID] = p
	}
	seen := make(map[string]bool, len(sections))
	kept := make([]models.ScriptSection, 0, len(sections))
	for _, sec := range sections {
		if p, ok := byID[sec.PropositionID]; ok && !p.IsLive() {
			continue
		}
		if seen[sec.PropositionID] {
			continue
		}
		seen[sec.PropositionID] = true
		kept = append(kept, sec)
	}
	return kept
}

// lastUpdatedIndex maps proposition id → id of the interview that last grew
// its evidence, for the section-cap tiebreak.
func lastUpdatedIndex(props []*models.Proposition) map[string]string {
	m := make(map[string]string, len(props))
	for _, p := range props {
		m[p.ID] = p.LastUpdatedInterview
	}
	return m
}
