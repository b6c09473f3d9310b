package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

// CreateProject posts a draft project and returns the parsed response.
func (app *TestApp) CreateProject(t *testing.T, id, researchQuestion string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{
		"id":                id,
		"research_question": researchQuestion,
	}
	return app.postJSON(t, "/api/v1/projects", body, http.StatusCreated)
}

// CreateProjectWithAgent posts a draft project bound to a voice agent.
func (app *TestApp) CreateProjectWithAgent(t *testing.T, id, researchQuestion, agentID string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{
		"id":                id,
		"research_question": researchQuestion,
		"voice_agent_id":    agentID,
	}
	return app.postJSON(t, "/api/v1/projects", body, http.StatusCreated)
}

// StartProject starts a draft project and returns the parsed response.
func (app *TestApp) StartProject(t *testing.T, projectID string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/projects/"+projectID+"/start", nil, http.StatusOK)
}

// SubmitTranscript posts a voice webhook for projectID and expects it to be
// queued. Returns the parsed response.
func (app *TestApp) SubmitTranscript(t *testing.T, projectID, conversationID, transcript string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{
		"conversation_id": conversationID,
		"project_id":      projectID,
		"transcript":      transcript,
	}
	return app.postJSON(t, "/webhook/voice", body, http.StatusAccepted)
}

// PostWebhook posts an arbitrary webhook payload and returns the parsed
// response after asserting the status code.
func (app *TestApp) PostWebhook(t *testing.T, body map[string]interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/webhook/voice", body, expectedStatus)
}

// Synthesize generates the report for projectID and returns the parsed
// response.
func (app *TestApp) Synthesize(t *testing.T, projectID string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/projects/"+projectID+"/synthesize", nil, http.StatusOK)
}

// GetProject retrieves one project.
func (app *TestApp) GetProject(t *testing.T, projectID string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/projects/"+projectID, http.StatusOK)
}

// DeleteProject deletes one project.
func (app *TestApp) DeleteProject(t *testing.T, projectID string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, app.BaseURL+"/api/v1/projects/"+projectID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode, "DELETE project %s: unexpected status", projectID)
}

// GetEvidence returns the project's evidence collection.
func (app *TestApp) GetEvidence(t *testing.T, projectID string) []interface{} {
	t.Helper()
	return app.getJSONArray(t, "/api/v1/projects/"+projectID+"/evidence", http.StatusOK)
}

// GetPropositions returns the project's proposition collection.
func (app *TestApp) GetPropositions(t *testing.T, projectID string) []interface{} {
	t.Helper()
	return app.getJSONArray(t, "/api/v1/projects/"+projectID+"/propositions", http.StatusOK)
}

// GetScripts returns the project's script history.
func (app *TestApp) GetScripts(t *testing.T, projectID string) []interface{} {
	t.Helper()
	return app.getJSONArray(t, "/api/v1/projects/"+projectID+"/scripts", http.StatusOK)
}

// GetInterviews returns the project's interview collection.
func (app *TestApp) GetInterviews(t *testing.T, projectID string) []interface{} {
	t.Helper()
	return app.getJSONArray(t, "/api/v1/projects/"+projectID+"/interviews", http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status, body: %s", path, raw)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSONArray(t *testing.T, path string, expectedStatus int) []interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result []interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// ────────────────────────────────────────────────────────────
// State polling helpers
// ────────────────────────────────────────────────────────────

// WaitForScriptVersion polls until the project's committed script version
// reaches at least version. The script commit is the last step of an
// ingestion, so reaching it means the whole flow for that interview is done.
func (app *TestApp) WaitForScriptVersion(t *testing.T, projectID string, version int) {
	t.Helper()
	var last int
	require.Eventually(t, func() bool {
		p, err := app.Store.GetProject(projectID)
		if err != nil {
			return false
		}
		last = p.CurrentScriptVersion
		return last >= version
	}, 30*time.Second, 50*time.Millisecond,
		"project %s never reached script v%d (last: v%d)", projectID, version, last)
}

// WaitForAnalystCalls polls until the analyst oracle has served n calls.
// Used by failure tests where no state change marks completion.
func (app *TestApp) WaitForAnalystCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return app.Analyst.CallCount() >= n
	}, 30*time.Second, 50*time.Millisecond,
		"analyst oracle never reached %d calls (last: %d)", n, app.Analyst.CallCount())
}

// ────────────────────────────────────────────────────────────
// SSE stream helpers
// ────────────────────────────────────────────────────────────

// StreamWatcher consumes one project's SSE stream in the background and
// records the event names it sees.
type StreamWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	names []string
}

// WatchStream opens the project's event stream and returns a watcher.
// Closing is registered via t.Cleanup.
func (app *TestApp) WatchStream(t *testing.T, projectID string) *StreamWatcher {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		app.BaseURL+"/api/v1/projects/"+projectID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "stream handshake failed")
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	w := &StreamWatcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer func() { _ = resp.Body.Close() }()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event:"); ok {
				w.mu.Lock()
				w.names = append(w.names, strings.TrimSpace(name))
				w.mu.Unlock()
			}
		}
	}()
	t.Cleanup(w.Close)
	return w
}

// WaitFor blocks until an event with the given name has been seen.
func (w *StreamWatcher) WaitFor(t *testing.T, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return w.Seen(name)
	}, 30*time.Second, 50*time.Millisecond,
		"event %q never arrived (saw: %v)", name, w.Names())
}

// Seen reports whether an event with the given name has arrived.
func (w *StreamWatcher) Seen(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range w.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns a copy of the event names seen so far, in arrival order.
func (w *StreamWatcher) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}

// Close cancels the stream request and waits for the reader to drain.
func (w *StreamWatcher) Close() {
	w.cancel()
	<-w.done
}

// ────────────────────────────────────────────────────────────
// Shared model scripts
// ────────────────────────────────────────────────────────────

const nursingQuestion = "Why do night-shift nurses skip their scheduled breaks?"

// initialDesignJSON is a designer response seeding two propositions and
// script v1. Sections carry the symbolic refs; starting the project rewrites
// them to the reserved proposition ids.
func initialDesignJSON() string {
	return `{
		"propositions": [
			{
				"ref": "p#1",
				"factor": "Chronic understaffing",
				"mechanism": "fewer nurses cover the same patient load, so stepping away feels unsafe",
				"outcome": "breaks are skipped",
				"status": "untested"
			},
			{
				"ref": "p#2",
				"factor": "Break room distance",
				"mechanism": "reaching the break room costs more time than the break itself",
				"outcome": "nurses stay on the unit instead",
				"status": "untested"
			}
		],
		"script": {
			"opening_question": "Tell me about your most recent night shift. How did it go?",
			"sections": [
				{
					"proposition_id": "p#1",
					"priority": "high",
					"instruction": "EXPLORE",
					"main_question": "What was staffing like the last time you worked through a break?",
					"probes": ["What were you covering at that moment?", "Who could have taken over for you?"],
					"context": "Opening angle from the research question"
				},
				{
					"proposition_id": "p#2",
					"priority": "medium",
					"instruction": "EXPLORE",
					"main_question": "Where do you actually go when you do take a break?",
					"probes": ["How long does it take to get there and back?"],
					"context": ""
				}
			],
			"closing_question": "Is there anything about breaks on your unit I should have asked about?",
			"wildcard": "If the participant raises patient safety, follow that thread.",
			"changes_summary": "Initial script from the research question"
		}
	}`
}

// minimalAnalysisJSON is an analyst response with one supporting evidence
// item for propositionID and nothing else.
func minimalAnalysisJSON(propositionID string) string {
	return fmt.Sprintf(`{
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
			{"evidence_ref": "e#1", "proposition_id": %q, "relationship": "supports"}
		],
		"new_propositions": [],
		"merges": [],
		"subsumes": [],
		"prunes": [],
		"summary": "One account of staffing pressure blocking breaks."
	}`, propositionID)
}

// scriptUpdateJSON is a designer response advancing the script with one high
// priority section per given proposition id.
func scriptUpdateJSON(changes string, propositionIDs ...string) string {
	sections := make([]string, 0, len(propositionIDs))
	for _, id := range propositionIDs {
		sections = append(sections, fmt.Sprintf(`{
			"proposition_id": %q,
			"priority": "high",
			"instruction": "VERIFY",
			"main_question": "Walk me through the last break you actually took.",
			"probes": ["What made that one possible?"],
			"context": "Committed evidence backs this claim"
		}`, id))
	}
	return fmt.Sprintf(`{
		"script": {
			"opening_question": "Thanks for making time again. How have your recent shifts been?",
			"sections": [%s],
			"closing_question": "Anything else I should understand about breaks?",
			"wildcard": "Follow any mention of handover friction.",
			"changes_summary": %q
		}
	}`, strings.Join(sections, ","), changes)
}
