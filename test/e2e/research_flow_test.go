package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstTranscript = `agent: Tell me about your most recent night shift. How did it go?
user: Rough. I had six patients and the charge nurse had seven. Nobody leaves the floor when it is like that.
agent: What was staffing like the last time you worked through a break?
user: Same story. Our charge nurse never takes hers either, so it would feel wrong to go sit down.
agent: Is there anything about breaks on your unit I should have asked about?
user: Just that nobody talks about it. It is simply how nights work here.`

const secondTranscript = `agent: Thanks for making time again. How have your recent shifts been?
user: Calmer. I actually took a break on Tuesday because the break room on our floor reopened.
agent: Walk me through the last break you actually took.
user: Fifteen minutes, two doors down from my patients. That distance is the whole difference.`

// flowAnalysisJSON is the analyst response for the first interview: one
// supporting quote for P001 and a brand new social-modeling proposition.
func flowAnalysisJSON() string {
	return `{
		"new_evidence": [
			{
				"ref": "e#1",
				"quote": "I had six patients and the charge nurse had seven. Nobody leaves the floor when it is like that.",
				"interpretation": "Patient load directly prevents stepping away",
				"factor": "Chronic understaffing",
				"mechanism": "high patient-to-nurse ratios make leaving the floor feel unsafe",
				"outcome": "breaks are skipped",
				"tags": ["staffing", "workload"],
				"language": "en"
			}
		],
		"mappings": [
			{"evidence_ref": "e#1", "proposition_id": "P001", "relationship": "supports"}
		],
		"new_propositions": [
			{
				"ref": "p#1",
				"factor": "Charge nurse example",
				"mechanism": "nurses mirror whether their charge nurse takes breaks",
				"outcome": "skipping becomes the unit norm",
				"status": "untested"
			}
		],
		"merges": [],
		"subsumes": [],
		"prunes": [],
		"summary": "Staffing pressure confirmed once; a social modeling angle surfaced."
	}`
}

const flowReport = `# Why night-shift nurses skip their scheduled breaks

## Staffing pressure
Nurses describe patient loads that make leaving the floor feel unsafe.

## Open threads
The charge nurse's own break behavior appears to set the unit norm.`

// TestResearchLifecycle drives one project from creation to deletion over
// HTTP: start with a designed script, ingest a webhook transcript, observe
// the knowledge base and the event stream, synthesize a report, watch new
// evidence mark it stale, and delete.
func TestResearchLifecycle(t *testing.T) {
	app := NewTestApp(t)
	const projectID = "nursing-breaks"

	// Create a draft project bound to a voice agent.
	created := app.CreateProjectWithAgent(t, projectID, nursingQuestion, "agent-e2e")
	require.Equal(t, "draft", created["status"])
	require.Equal(t, nursingQuestion, created["research_question"])

	// Start it: the scripted designer seeds two propositions and script v1.
	app.Designer.Add(initialDesignJSON())
	started := app.StartProject(t, projectID)

	project := started["project"].(map[string]interface{})
	assert.Equal(t, "running", project["status"])
	assert.EqualValues(t, 1, project["current_script_version"])
	assert.Equal(t, false, started["sync_pending"])
	assert.Contains(t, started["talk_to_link"], "agent-e2e")

	script := started["script"].(map[string]interface{})
	assert.EqualValues(t, 1, script["version"])
	sections := script["sections"].([]interface{})
	require.Len(t, sections, 2)
	first := sections[0].(map[string]interface{})
	assert.Equal(t, "P001", first["proposition_id"], "symbolic refs become reserved ids")

	prompts := app.Voice.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "agent-e2e", prompts[0].AgentID)
	assert.Contains(t, prompts[0].Prompt, "What was staffing like")

	props := app.GetPropositions(t, projectID)
	require.Len(t, props, 2)

	// Watch the project's event stream for the rest of the flow.
	watcher := app.WatchStream(t, projectID)

	// First interview arrives by webhook.
	app.Analyst.Add(flowAnalysisJSON())
	app.Designer.Add(scriptUpdateJSON("Added a section for the charge nurse angle", "P001", "P003"))
	queued := app.SubmitTranscript(t, projectID, "conv-e2e-001", firstTranscript)
	assert.Equal(t, "queued", queued["status"])

	app.WaitForScriptVersion(t, projectID, 2)

	evidence := app.GetEvidence(t, projectID)
	require.Len(t, evidence, 1)
	ev := evidence[0].(map[string]interface{})
	assert.Equal(t, "E001", ev["id"])
	assert.Equal(t, "INT_001", ev["interview_id"])
	assert.Contains(t, ev["quote"], "six patients")
	assert.Equal(t, "en", ev["language"])

	props = app.GetPropositions(t, projectID)
	require.Len(t, props, 3)
	byID := make(map[string]map[string]interface{}, len(props))
	for _, item := range props {
		p := item.(map[string]interface{})
		byID[p["id"].(string)] = p
	}
	require.Contains(t, byID, "P001")
	assert.Equal(t, "exploring", byID["P001"]["status"])
	assert.Contains(t, byID["P001"]["supporting_evidence"], "E001")
	require.Contains(t, byID, "P003")
	assert.Equal(t, "Charge nurse example", byID["P003"]["factor"])
	assert.Equal(t, "untested", byID["P003"]["status"])

	interviews := app.GetInterviews(t, projectID)
	require.Len(t, interviews, 1)
	iv := interviews[0].(map[string]interface{})
	assert.Equal(t, "INT_001", iv["id"])
	assert.Equal(t, "conv-e2e-001", iv["conversation_id"])
	assert.EqualValues(t, 1, iv["script_version_used"])

	scripts := app.GetScripts(t, projectID)
	require.Len(t, scripts, 2)
	v2 := scripts[1].(map[string]interface{})
	assert.EqualValues(t, 2, v2["version"])
	assert.Equal(t, "INT_001", v2["generated_after_interview"])
	assert.Len(t, app.Voice.Prompts(), 2, "every script version is published")

	watcher.WaitFor(t, "new_evidence")
	watcher.WaitFor(t, "new_proposition")
	watcher.WaitFor(t, "proposition_updated")
	watcher.WaitFor(t, "script_updated")

	// Replayed webhook is acknowledged without reprocessing.
	dup := app.PostWebhook(t, map[string]interface{}{
		"conversation_id": "conv-e2e-001",
		"project_id":      projectID,
		"transcript":      firstTranscript,
	}, http.StatusOK)
	assert.Equal(t, "duplicate", dup["status"])
	assert.Len(t, app.GetInterviews(t, projectID), 1)

	// Synthesize the report.
	app.Synthesizer.Add(flowReport)
	synth := app.Synthesize(t, projectID)
	assert.Contains(t, synth["report"], "Staffing pressure")
	watcher.WaitFor(t, "report_ready")

	fetched := app.GetProject(t, projectID)
	assert.Equal(t, "done", fetched["status"])
	assert.Contains(t, fetched["report"], "Staffing pressure")
	assert.NotContains(t, fetched, "report_stale")

	// Evidence committed after the report flips the stale bit.
	app.Analyst.Add(minimalAnalysisJSON("P002"))
	app.Designer.Add(scriptUpdateJSON("Shifted to verify the break room distance claim", "P002"))
	app.SubmitTranscript(t, projectID, "conv-e2e-002", secondTranscript)

	app.WaitForScriptVersion(t, projectID, 3)
	watcher.WaitFor(t, "report_stale")

	fetched = app.GetProject(t, projectID)
	assert.Equal(t, true, fetched["report_stale"])
	assert.Equal(t, "done", fetched["status"], "late interviews do not reopen a done project")
	assert.Len(t, app.GetEvidence(t, projectID), 2)
	assert.Len(t, app.GetInterviews(t, projectID), 2)

	// Delete: subscribers hear about it, then the resource is gone.
	app.DeleteProject(t, projectID)
	watcher.WaitFor(t, "project_deleted")
	app.getJSON(t, "/api/v1/projects/"+projectID, http.StatusNotFound)
}

// TestProjectIsolation runs two projects through the same instance and
// checks that ids, knowledge and deletion stay per-project.
func TestProjectIsolation(t *testing.T) {
	app := NewTestApp(t)

	app.CreateProject(t, "alpha", "Why do commuters abandon park-and-ride lots?")
	app.Designer.Add(initialDesignJSON())
	app.StartProject(t, "alpha")

	app.CreateProject(t, "beta", nursingQuestion)
	app.Designer.Add(initialDesignJSON())
	app.StartProject(t, "beta")

	// One worker processes in enqueue order, so the scripted responses pair
	// up with the webhooks deterministically.
	app.Analyst.Add(minimalAnalysisJSON("P001"))
	app.Analyst.Add(minimalAnalysisJSON("P001"))
	app.Designer.Add(scriptUpdateJSON("Verify the staffing claim", "P001"))
	app.Designer.Add(scriptUpdateJSON("Verify the staffing claim", "P001"))
	app.SubmitTranscript(t, "alpha", "conv-alpha-1", firstTranscript)
	app.SubmitTranscript(t, "beta", "conv-beta-1", firstTranscript)

	app.WaitForScriptVersion(t, "alpha", 2)
	app.WaitForScriptVersion(t, "beta", 2)

	for _, id := range []string{"alpha", "beta"} {
		evidence := app.GetEvidence(t, id)
		require.Len(t, evidence, 1, "project %s", id)
		assert.Equal(t, "E001", evidence[0].(map[string]interface{})["id"], "ids are per-project")
		interviews := app.GetInterviews(t, id)
		require.Len(t, interviews, 1, "project %s", id)
		assert.Equal(t, "INT_001", interviews[0].(map[string]interface{})["id"])
	}

	app.DeleteProject(t, "alpha")
	app.getJSON(t, "/api/v1/projects/alpha", http.StatusNotFound)

	remaining := app.GetProject(t, "beta")
	assert.Equal(t, "running", remaining["status"])
	assert.Len(t, app.GetEvidence(t, "beta"), 1)
}
