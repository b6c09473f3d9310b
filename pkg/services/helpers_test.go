package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInitialDesigner returns scripted proposals and a scripted draft script.
type fakeInitialDesigner struct {
	mu        sync.Mutex
	calls     int
	proposals []models.PropositionProposal
	script    *models.InterviewScript
	err       error
}

func (d *fakeInitialDesigner) GenerateInitial(_ context.Context, _ string, _ []string) ([]models.PropositionProposal, *models.InterviewScript, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.proposals, d.script, nil
}

func (d *fakeInitialDesigner) MinimalScript(researchQuestion string, propositions []*models.Proposition,
	metrics models.ProjectMetrics, version int, generatedAfter string) *models.InterviewScript {
	sections := make([]models.ScriptSection, 0, len(propositions))
	for i, p := range propositions {
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
		OpeningQuestion:         "To start, could you walk me through your experience?",
		Sections:                sections,
		ClosingQuestion:         "Is there anything else you think I should know?",
		Wildcard:                "If you could change one thing, what would it be?",
		Mode:                    metrics.Mode,
		ConvergenceScore:        metrics.ConvergenceScore,
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

type fakeQueue struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	err  error
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

type svcEnv struct {
	store     *store.Store
	bus       *events.Bus
	publisher *events.Publisher
	designer  *fakeInitialDesigner
	voice     *fakeVoice
	queue     *fakeQueue
	writer    *fakeWriter
	projects  *ProjectService
	ingest    *IngestService
	reports   *ReportService
}

func newSvcEnv(t *testing.T, defaultProject string) *svcEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "eidetic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(0, testLogger())
	t.Cleanup(bus.Close)

	env := &svcEnv{
		store:     st,
		bus:       bus,
		publisher: events.NewPublisher(bus),
		designer:  &fakeInitialDesigner{},
		voice:     &fakeVoice{},
		queue:     &fakeQueue{},
		writer:    &fakeWriter{},
	}
	env.projects = NewProjectService(st, env.designer, safety.NewGuard(testLogger()),
		env.publisher, bus, env.voice, config.DefaultTuningConfig(), testLogger())
	env.ingest = NewIngestService(st, env.queue, defaultProject, testLogger())
	env.reports = NewReportService(st, env.writer, env.publisher, testLogger())
	return env
}

// createDraft persists a draft project directly through the store, bypassing
// Create, so tests control every field.
func createDraft(t *testing.T, env *svcEnv, id, agentID string) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:               id,
		ResearchQuestion: "Why do night-shift nurses skip their scheduled breaks?",
		VoiceAgentID:     agentID,
		Status:           models.ProjectDraft,
		CreatedAt:        time.Now().UTC(),
		Metrics:          models.NewProjectMetrics(),
	}
	require.NoError(t, env.store.CreateProject(project))
	return project
}

// threeProposals is a typical initial-design result: refs p#1..p#3.
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
		priority := models.PriorityMedium
		if i == 0 {
			priority = models.PriorityHigh
		}
		sections = append(sections, models.ScriptSection{
			PropositionID: ref,
			Priority:      priority,
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

func subscribe(t *testing.T, env *svcEnv, projectID string) *events.Subscription {
	t.Helper()
	sub, err := env.bus.Subscribe(projectID)
	require.NoError(t, err)
	t.Cleanup(func() { env.bus.Unsubscribe(sub) })
	return sub
}

// drainTypes empties the subscription buffer and returns the event types in
// arrival order. Services publish synchronously, so no waiting is involved.
func drainTypes(sub *events.Subscription) []string {
	var types []string
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return types
			}
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

// nextEvent pops one buffered event, failing the test when none is there.
func nextEvent(t *testing.T, sub *events.Subscription) events.Envelope {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed while waiting for an event")
		return ev
	default:
		t.Fatal("expected a buffered event")
		return events.Envelope{}
	}
}

func decodeEvent[T any](t *testing.T, ev events.Envelope) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}
