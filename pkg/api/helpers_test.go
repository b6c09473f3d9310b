package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/services"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// webhookSecretEnv is the env var the test config points the secret
// resolution at. Each env sets it via t.Setenv before NewServer runs.
const webhookSecretEnv = "EIDETIC_TEST_WEBHOOK_SECRET"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDesigner returns scripted proposals and a scripted draft script.
type fakeDesigner struct {
	mu        sync.Mutex
	calls     int
	proposals []models.PropositionProposal
	script    *models.InterviewScript
	err       error
}

func (d *fakeDesigner) GenerateInitial(_ context.Context, _ string, _ []string) ([]models.PropositionProposal, *models.InterviewScript, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.proposals, d.script, nil
}

func (d *fakeDesigner) MinimalScript(researchQuestion string, propositions []*models.Proposition,
	metrics models.ProjectMetrics, version int, generatedAfter string) *models.InterviewScript {
	sections := make([]models.ScriptSection, 0, len(propositions))
	for _, p := range propositions {
		sections = append(sections, models.ScriptSection{
			PropositionID: p.ID,
			Priority:      models.PriorityMedium,
			Instruction:   models.InstructionExplore,
			MainQuestion:  fmt.Sprintf("Could you tell me more about %s?", strings.ToLower(p.Factor)),
			Probes:        []string{"Can you give a concrete example?", "What happened next?"},
		})
	}
	return &models.InterviewScript{
		Version:                 version,
		GeneratedAfterInterview: generatedAfter,
		ResearchQuestion:        researchQuestion,
		OpeningQuestion:         "To start, could you walk me through your experience?",
		Sections:                sections,
		ClosingQuestion:         "Is there anything else you think I should know?",
		Wildcard:                "If you could change one thing, what would it be?",
		Mode:                    metrics.Mode,
		NoveltyRate:             metrics.NoveltyRate,
		ChangesSummary:          "Fallback script generated",
		CreatedAt:               time.Now().UTC(),
	}
}

type fakeVoice struct {
	mu       sync.Mutex
	err      error
	attempts int
	agents   []string
	prompts  []string
}

func (v *fakeVoice) PublishPrompt(_ context.Context, agentID, prompt string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attempts++
	if v.err != nil {
		return v.err
	}
	v.agents = append(v.agents, agentID)
	v.prompts = append(v.prompts, prompt)
	return nil
}

// fakeQueue satisfies both the ingest service's queue and QueueStats.
type fakeQueue struct {
	mu       sync.Mutex
	jobs     []pipeline.Job
	err      error
	capacity int
}

func (q *fakeQueue) Enqueue(job pipeline.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *fakeQueue) Capacity() int {
	return q.capacity
}

type fakeWriter struct {
	mu     sync.Mutex
	calls  int
	report string
	err    error
}

func (w *fakeWriter) WriteReport(_ context.Context, snap *models.Snapshot) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return "", w.err
	}
	if w.report != "" {
		return w.report, nil
	}
	return fmt.Sprintf("# Research Report\n\nFindings from %d interviews.", len(snap.Interviews)), nil
}

type apiEnv struct {
	store     *store.Store
	bus       *events.Bus
	publisher *events.Publisher
	designer  *fakeDesigner
	voice     *fakeVoice
	queue     *fakeQueue
	writer    *fakeWriter
	server    *Server
}

// newAPIEnv builds a Server over real services, a real bolt store and fake
// external dependencies. webhookSecret lands in the env var the config names;
// empty disables signature verification.
func newAPIEnv(t *testing.T, defaultProject, webhookSecret string) *apiEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "eidetic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(0, testLogger())
	t.Cleanup(bus.Close)

	env := &apiEnv{
		store:    st,
		bus:      bus,
		designer: &fakeDesigner{},
		voice:    &fakeVoice{},
		queue:    &fakeQueue{capacity: 100},
		writer:   &fakeWriter{},
	}

	env.publisher = events.NewPublisher(bus)
	projects := services.NewProjectService(st, env.designer, safety.NewGuard(testLogger()),
		env.publisher, bus, env.voice, config.DefaultTuningConfig(), testLogger())
	ingest := services.NewIngestService(st, env.queue, defaultProject, testLogger())
	reports := services.NewReportService(st, env.writer, env.publisher, testLogger())

	t.Setenv(webhookSecretEnv, webhookSecret)
	cfg := &config.Config{
		System: &config.SystemConfig{
			DefaultProject: defaultProject,
			Voice: &config.VoiceConfig{
				WebhookSecretEnv: webhookSecretEnv,
				WebhookTolerance: 5 * time.Minute,
			},
		},
	}

	env.server = NewServer(cfg, projects, ingest, reports, st, bus, env.queue, testLogger())
	return env
}

// do runs one request through the router. A non-nil body is sent as JSON.
func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.engine.ServeHTTP(rec, req)
	return rec
}

// doRaw posts raw bytes with arbitrary headers, for webhook delivery tests.
func (e *apiEnv) doRaw(t *testing.T, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// createProject provisions a draft project through the API.
func (e *apiEnv) createProject(t *testing.T, id, agentID string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
		ID:               id,
		ResearchQuestion: "Why do night-shift nurses skip their scheduled breaks?",
		VoiceAgentID:     agentID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
}

// startProject seeds the fake designer and starts the project through the API.
func (e *apiEnv) startProject(t *testing.T, id string) {
	t.Helper()
	e.designer.mu.Lock()
	e.designer.proposals = threeProposals()
	e.designer.script = draftScript("p#1", "p#2", "p#3")
	e.designer.mu.Unlock()

	rec := e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func threeProposals() []models.PropositionProposal {
	return []models.PropositionProposal{
		{Ref: "p#1", Factor: "Staffing pressure", Mechanism: "no coverage while away from the floor", Outcome: "breaks skipped", Status: models.StatusUntested},
		{Ref: "p#2", Factor: "Break room distance", Mechanism: "walking time eats the break", Outcome: "breaks not worth taking", Status: models.StatusUntested},
		{Ref: "p#3", Factor: "Unit culture", Mechanism: "taking breaks reads as weakness", Outcome: "breaks quietly dropped", Status: models.StatusExploring},
	}
}

// draftScript builds a designer-authored v1 draft whose sections still carry
// symbolic refs.
func draftScript(refs ...string) *models.InterviewScript {
	questions := []string{
		"What gets in the way of stepping off the floor?",
		"How do handoffs shape the middle of the night?",
		"What does a good break actually look like?",
	}
	sections := make([]models.ScriptSection, 0, len(refs))
	for i, ref := range refs {
		sections = append(sections, models.ScriptSection{
			PropositionID: ref,
			Priority:      models.PriorityMedium,
			Instruction:   models.InstructionExplore,
			MainQuestion:  questions[i%len(questions)],
			Probes:        []string{"Can you walk me through the last time?", "Who else was involved?"},
		})
	}
	return &models.InterviewScript{
		Version:          1,
		ResearchQuestion: "Why do night-shift nurses skip their scheduled breaks?",
		OpeningQuestion:  "Tell me about your last night shift.",
		Sections:         sections,
		ClosingQuestion:  "Anything else I should have asked?",
		Wildcard:         "What surprised you most recently?",
		Mode:             models.ModeDivergent,
		NoveltyRate:      1,
		ChangesSummary:   "Initial script",
		CreatedAt:        time.Now().UTC(),
	}
}

// signWebhook produces a valid "t=...,v0=..." header for body at ts.
func signWebhook(body []byte, secret string, ts time.Time) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v0=%s", tsStr, hex.EncodeToString(mac.Sum(nil)))
}
