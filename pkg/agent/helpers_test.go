package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

// fakeOracle replays scripted responses and records every request it saw.
type fakeOracle struct {
	jsonReplies []string
	chatReplies []string
	err         error
	requests    []llm.ChatRequest
}

func (f *fakeOracle) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	reply := f.chatReplies[0]
	f.chatReplies = f.chatReplies[1:]
	return reply, nil
}

func (f *fakeOracle) ChatJSON(_ context.Context, req llm.ChatRequest) (json.RawMessage, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	reply := f.jsonReplies[0]
	f.jsonReplies = f.jsonReplies[1:]
	return json.RawMessage(reply), nil
}

func testRoleConfig() *config.AgentRoleConfig {
	return &config.AgentRoleConfig{
		Provider:    "mistral",
		Model:       "test-model",
		Temperature: 0.3,
		MaxTokens:   2048,
		Timeout:     5 * time.Second,
	}
}

func testTuning() *config.TuningConfig {
	return config.DefaultTuningConfig()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// analysisSnapshot is a small running project: two evidence items, two live
// propositions and one retired one.
func analysisSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Project: &models.Project{
			ID:                   "lunar",
			ResearchQuestion:     "Why do night-shift nurses skip breaks?",
			Status:               models.ProjectRunning,
			CurrentScriptVersion: 2,
			Metrics: models.ProjectMetrics{
				ConvergenceScore: 0.4,
				NoveltyRate:      0.3,
				Mode:             models.ModeDivergent,
			},
		},
		Evidence: []*models.Evidence{
			{ID: "E001", InterviewID: "INT_001", Quote: "the ward empties at 3am", Interpretation: "staffing dips overnight", Factor: "understaffing", Mechanism: "no cover for breaks", Outcome: "breaks skipped", Tags: []string{"staffing"}, Language: "en"},
			{ID: "E002", InterviewID: "INT_001", Quote: "I feel guilty leaving", Interpretation: "peer pressure", Factor: "team norms", Mechanism: "guilt about workload shifting", Outcome: "breaks skipped", Tags: []string{"culture"}, Language: "en"},
		},
		Propositions: []*models.Proposition{
			{ID: "P001", Factor: "understaffing", Mechanism: "no cover for breaks", Outcome: "breaks skipped", Status: models.StatusExploring, Confidence: 0.8, SupportingEvidence: []string{"E001"}, LastUpdatedInterview: "INT_001"},
			{ID: "P002", Factor: "team norms", Mechanism: "guilt about workload shifting", Outcome: "breaks skipped", Status: models.StatusChallenged, Confidence: 0.5, SupportingEvidence: []string{"E002"}, LastUpdatedInterview: "INT_002"},
			{ID: "P003", Factor: "shift length", Mechanism: "fatigue", Outcome: "breaks skipped", Status: models.StatusWeak, Confidence: 0.1},
		},
		Interviews: []*models.Interview{
			{ID: "INT_001", ConversationID: "conv-1", Transcript: "agent: hi\nuser: hello"},
			{ID: "INT_002", ConversationID: "conv-2", Transcript: "agent: hi again\nuser: hello"},
		},
		Scripts: []*models.InterviewScript{
			{Version: 1, ResearchQuestion: "Why do night-shift nurses skip breaks?", OpeningQuestion: "Tell me about your last shift.", Mode: models.ModeDivergent, NoveltyRate: 1},
			{Version: 2, ResearchQuestion: "Why do night-shift nurses skip breaks?", OpeningQuestion: "Tell me about your last shift.", Mode: models.ModeDivergent, NoveltyRate: 0.3, ConvergenceScore: 0.4,
				Sections: []models.ScriptSection{{PropositionID: "P001", Priority: models.PriorityHigh, Instruction: models.InstructionExplore, MainQuestion: "What happens at 3am?", Probes: []string{"Who covers you?"}}}},
		},
	}
}
