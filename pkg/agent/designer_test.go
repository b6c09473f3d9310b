package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

func TestGenerateInitial(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{
		"propositions": [
			{"factor": "understaffing", "mechanism": "no cover for breaks", "outcome": "breaks skipped"},
			{"factor": "team norms", "mechanism": "guilt about workload shifting", "outcome": "breaks skipped"}
		],
		"script": {
			"opening_question": "Walk me through your last night shift.",
			"sections": [
				{"proposition_id": "p#1", "priority": "high", "instruction": "EXPLORE", "main_question": "Who covers your patients when you step away?", "probes": ["When did that last happen?"]}
			],
			"closing_question": "Anything else?",
			"wildcard": "What would your colleagues say?",
			"changes_summary": "Initial script"
		}
	}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	proposals, script, err := designer.GenerateInitial(context.Background(), "Why do night-shift nurses skip breaks?", []string{"staffing"})
	require.NoError(t, err)

	require.Len(t, proposals, 2)
	assert.Equal(t, "p#1", proposals[0].Ref)
	assert.Equal(t, models.StatusUntested, proposals[0].Status)

	require.NotNil(t, script)
	assert.Equal(t, 1, script.Version)
	assert.Empty(t, script.GeneratedAfterInterview)
	assert.Equal(t, "Why do night-shift nurses skip breaks?", script.ResearchQuestion)
	assert.Equal(t, "Walk me through your last night shift.", script.OpeningQuestion)
	require.Len(t, script.Sections, 1)
	assert.Equal(t, models.ModeDivergent, script.Mode)
	assert.Equal(t, 0.0, script.ConvergenceScore)
	assert.Equal(t, 1.0, script.NoveltyRate)
	assert.False(t, script.CreatedAt.IsZero())
}

func TestGenerateInitialAcceptsNewPropositionsKey(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{
		"new_propositions": [
			{"factor": "f", "mechanism": "m", "outcome": "o"}
		],
		"script": {"sections": []}
	}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	proposals, _, err := designer.GenerateInitial(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func TestGenerateInitialWithoutPropositionsFails(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{"propositions": [], "script": {"sections": []}}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	_, _, err := designer.GenerateInitial(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable propositions")
}

func TestUpdateScriptVersionAndSectionDefaults(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{
		"script": {
			"sections": [
				{"priority": "urgent", "instruction": "probe", "probes": ["a", 7, "b", "c", "d"]},
				"garbage",
				{"proposition_id": "P002", "priority": "low", "instruction": "challenge", "main_question": "Could it be something else?", "probes": []}
			]
		}
	}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	snap := analysisSnapshot()
	script, err := designer.UpdateScript(context.Background(), snap, "INT_002")
	require.NoError(t, err)

	assert.Equal(t, snap.Project.CurrentScriptVersion+1, script.Version)
	assert.Equal(t, "INT_002", script.GeneratedAfterInterview)
	assert.Equal(t, snap.Project.Metrics.Mode, script.Mode)
	assert.Equal(t, snap.Project.Metrics.ConvergenceScore, script.ConvergenceScore)
	assert.Equal(t, snap.Project.Metrics.NoveltyRate, script.NoveltyRate)
	assert.Equal(t, "Script updated", script.ChangesSummary)
	assert.Equal(t, prompt.DefaultOpeningQuestion, script.OpeningQuestion)
	assert.Equal(t, prompt.DefaultClosingQuestion, script.ClosingQuestion)
	assert.Equal(t, prompt.DefaultWildcardQuestion, script.Wildcard)

	require.Len(t, script.Sections, 2, "non-object section dropped")
	first := script.Sections[0]
	assert.Equal(t, "P000", first.PropositionID)
	assert.Equal(t, models.PriorityMedium, first.Priority)
	assert.Equal(t, models.InstructionExplore, first.Instruction)
	assert.Equal(t, prompt.DefaultMainQuestion, first.MainQuestion)
	assert.Equal(t, []string{"a", "b", "c"}, first.Probes, "non-strings skipped, capped at three")

	second := script.Sections[1]
	assert.Equal(t, models.InstructionChallenge, second.Instruction, "instruction is case-insensitive")
}

func TestUpdateScriptDropsRetiredAndDuplicateSections(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{
		"script": {
			"sections": [
				{"proposition_id": "P001", "priority": "high", "instruction": "VERIFY", "main_question": "q1"},
				{"proposition_id": "P003", "priority": "high", "instruction": "EXPLORE", "main_question": "q2"},
				{"proposition_id": "P001", "priority": "low", "instruction": "EXPLORE", "main_question": "q3"},
				{"proposition_id": "P002", "priority": "medium", "instruction": "CHALLENGE", "main_question": "q4"}
			]
		}
	}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	script, err := designer.UpdateScript(context.Background(), analysisSnapshot(), "INT_003")
	require.NoError(t, err)

	require.Len(t, script.Sections, 2, "weak P003 and the duplicate P001 dropped")
	assert.Equal(t, "P001", script.Sections[0].PropositionID)
	assert.Equal(t, "q1", script.Sections[0].MainQuestion)
	assert.Equal(t, "P002", script.Sections[1].PropositionID)
}

func TestUpdateScriptAcceptsBareScriptObject(t *testing.T) {
	oracle := &fakeOracle{jsonReplies: []string{`{
		"opening_question": "No wrapper here.",
		"sections": [{"proposition_id": "P001", "priority": "high", "instruction": "VERIFY", "main_question": "q"}],
		"closing_question": "c",
		"wildcard": "w",
		"changes_summary": "s"
	}`}}

	designer := NewDesigner(oracle, testRoleConfig(), testTuning(), testLogger())
	script, err := designer.UpdateScript(context.Background(), analysisSnapshot(), "INT_002")
	require.NoError(t, err)

	assert.Equal(t, "No wrapper here.", script.OpeningQuestion)
	require.Len(t, script.Sections, 1)
	assert.Equal(t, models.InstructionVerify, script.Sections[0].Instruction)
}

func TestUpdateScriptPropagatesOracleError(t *testing.T) {
	boom := errors.New("provider down")
	designer := NewDesigner(&fakeOracle{err: boom}, testRoleConfig(), testTuning(), testLogger())

	_, err := designer.UpdateScript(context.Background(), analysisSnapshot(), "INT_002")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCapSectionsDropOrder(t *testing.T) {
	sec := func(id string, instr models.ScriptInstruction, prio models.ScriptPriority) models.ScriptSection {
		return models.ScriptSection{PropositionID: id, Instruction: instr, Priority: prio, MainQuestion: "q"}
	}
	sections := []models.ScriptSection{
		sec("P001", models.InstructionExplore, models.PriorityHigh),
		sec("P002", models.InstructionSaturated, models.PriorityHigh),
		sec("P003", models.InstructionVerify, models.PriorityLow),
		sec("P004", models.InstructionChallenge, models.PriorityMedium),
		sec("P005", models.InstructionExplore, models.PriorityLow),
		sec("P006", models.InstructionVerify, models.PriorityHigh),
	}

	capped := capSections(sections, 4, nil)
	require.Len(t, capped, 4)
	ids := []string{capped[0].PropositionID, capped[1].PropositionID, capped[2].PropositionID, capped[3].PropositionID}
	assert.Equal(t, []string{"P001", "P004", "P005", "P006"}, ids,
		"saturated drops first, then the low-priority verify; original order kept")

	capped = capSections(sections, 3, nil)
	ids = []string{capped[0].PropositionID, capped[1].PropositionID, capped[2].PropositionID}
	assert.Equal(t, []string{"P001", "P004", "P005"}, ids,
		"both verify sections go before any challenge or explore")
}

func TestCapSectionsPrefersRecentlyUpdated(t *testing.T) {
	sec := func(id string) models.ScriptSection {
		return models.ScriptSection{PropositionID: id, Instruction: models.InstructionExplore, Priority: models.PriorityMedium, MainQuestion: "q"}
	}
	sections := []models.ScriptSection{sec("P001"), sec("P002"), sec("P003")}
	lastUpdated := map[string]string{"P001": "INT_001", "P002": "INT_003", "P003": "INT_002"}

	capped := capSections(sections, 2, lastUpdated)
	require.Len(t, capped, 2)
	assert.Equal(t, "P002", capped[0].PropositionID)
	assert.Equal(t, "P003", capped[1].PropositionID)
}

func TestCapSectionsNoopUnderLimit(t *testing.T) {
	sections := []models.ScriptSection{{PropositionID: "P001"}}
	assert.Equal(t, sections, capSections(sections, 8, nil))
}

func TestMinimalScript(t *testing.T) {
	designer := NewDesigner(&fakeOracle{}, testRoleConfig(), testTuning(), testLogger())
	props := []*models.Proposition{
		{ID: "P001", Factor: "Understaffing", Status: models.StatusExploring},
		{ID: "P002", Factor: "Team norms", Status: models.StatusUntested},
	}
	metrics := models.ProjectMetrics{ConvergenceScore: 0.2, NoveltyRate: 0.5, Mode: models.ModeDivergent}

	script := designer.MinimalScript("q", props, metrics, 4, "INT_009")

	assert.Equal(t, 4, script.Version)
	assert.Equal(t, "INT_009", script.GeneratedAfterInterview)
	assert.Equal(t, prompt.FallbackOpeningQuestion, script.OpeningQuestion)
	assert.Equal(t, "Fallback script generated", script.ChangesSummary)
	require.Len(t, script.Sections, 2)
	assert.Equal(t, models.PriorityHigh, script.Sections[0].Priority)
	assert.Equal(t, models.PriorityMedium, script.Sections[1].Priority)
	assert.Equal(t, "Could you tell me more about understaffing?", script.Sections[0].MainQuestion)
	assert.Equal(t, models.InstructionExplore, script.Sections[0].Instruction)
	assert.Len(t, script.Sections[0].Probes, 2)
	assert.Equal(t, 0.2, script.ConvergenceScore)
}

func TestMinimalScriptHonorsSectionCap(t *testing.T) {
	designer := NewDesigner(&fakeOracle{}, testRoleConfig(), testTuning(), testLogger())
	props := make([]*models.Proposition, 0, 12)
	for i := 0; i < 12; i++ {
		props = append(props, &models.Proposition{ID: "P0", Factor: "f"})
	}

	script := designer.MinimalScript("q", props, models.NewProjectMetrics(), 1, "")
	assert.Len(t, script.Sections, testTuning().MaxPropositionsInScript)
}
