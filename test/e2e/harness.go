// Package e2e boots a complete engine instance and drives it over HTTP. Only
// the model calls and the voice platform are scripted; the store, the event
// bus, the agents, the reconciler, the pipeline, the services and the API
// server are the real components wired exactly as in main.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eidetic-ai/eidetic/pkg/agent"
	"github.com/eidetic-ai/eidetic/pkg/api"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/reconciler"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/services"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestApp boots a complete engine instance for end-to-end testing.
type TestApp struct {
	Config *config.Config
	Store  *store.Store
	Bus    *events.Bus

	// Scripted boundaries
	Analyst     *ScriptedOracle
	Designer    *ScriptedOracle
	Synthesizer *ScriptedOracle
	Voice       *RecordingVoice

	// Real infrastructure
	Pipeline *pipeline.Pipeline
	Server   *api.Server

	BaseURL string

	t *testing.T
}

type testAppConfig struct {
	defaultProject string
	workerCount    int
	queueSize      int
	ingestTimeout  time.Duration
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithDefaultProject routes webhooks without project information to id.
func WithDefaultProject(id string) TestAppOption {
	return func(c *testAppConfig) { c.defaultProject = id }
}

// WithWorkerCount sets the number of pipeline workers. Tests that assert on
// processing order keep the default of one.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithIngestTimeout caps one transcript's end-to-end processing time.
func WithIngestTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.ingestTimeout = d }
}

// NewTestApp creates and starts a full engine instance on an ephemeral port.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workerCount:   1,
		queueSize:     16,
		ingestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}

	cfg := &config.Config{
		System: &config.SystemConfig{
			DataPath:       filepath.Join(t.TempDir(), "eidetic.db"),
			DefaultProject: tc.defaultProject,
			Voice: &config.VoiceConfig{
				APIKeyEnv:        "EIDETIC_E2E_VOICE_KEY",
				WebhookSecretEnv: "EIDETIC_E2E_WEBHOOK_SECRET",
				WebhookTolerance: 5 * time.Minute,
			},
		},
		Tuning: config.DefaultTuningConfig(),
		Queue: &config.QueueConfig{
			WorkerCount:             tc.workerCount,
			QueueSize:               tc.queueSize,
			IngestTimeout:           tc.ingestTimeout,
			GracefulShutdownTimeout: 10 * time.Second,
			RepublishInterval:       time.Hour,
		},
	}
	// Webhook signature verification stays off; it has dedicated API tests.
	t.Setenv(cfg.System.Voice.WebhookSecretEnv, "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Store on a per-test temp file.
	st, err := store.Open(cfg.System.DataPath)
	require.NoError(t, err)

	// 2. Event bus and publisher.
	bus := events.NewBus(0, logger)
	publisher := events.NewPublisher(bus)

	// 3. Agents over scripted oracles.
	roleCfg := &config.AgentRoleConfig{
		Provider:    "scripted",
		Temperature: 0.2,
		MaxTokens:   4096,
		Timeout:     10 * time.Second,
	}
	analystOracle := NewScriptedOracle("analyst")
	designerOracle := NewScriptedOracle("designer")
	synthOracle := NewScriptedOracle("synthesizer")
	analyst := agent.NewAnalyst(analystOracle, roleCfg, logger)
	designer := agent.NewDesigner(designerOracle, roleCfg, cfg.Tuning, logger)
	synthesizer := agent.NewSynthesizer(synthOracle, roleCfg, logger)

	// 4. Knowledge machinery and the scripted voice boundary.
	guard := safety.NewGuard(logger)
	rec := reconciler.New(cfg.Tuning, logger)
	voice := NewRecordingVoice()

	// 5. Pipeline.
	pipe := pipeline.New(st, analyst, designer, rec, guard, publisher, voice, cfg.Queue, cfg.Tuning, logger)
	pipe.Start(context.Background())

	// 6. Services.
	projectService := services.NewProjectService(st, designer, guard, publisher, bus, voice, cfg.Tuning, logger)
	ingestService := services.NewIngestService(st, pipe, cfg.System.DefaultProject, logger)
	reportService := services.NewReportService(st, synthesizer, publisher, logger)

	// 7. HTTP server on an ephemeral port.
	server := api.NewServer(cfg, projectService, ingestService, reportService, st, bus, pipe, logger)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:      cfg,
		Store:       st,
		Bus:         bus,
		Analyst:     analystOracle,
		Designer:    designerOracle,
		Synthesizer: synthOracle,
		Voice:       voice,
		Pipeline:    pipe,
		Server:      server,
		BaseURL:     "http://" + ln.Addr().String(),
		t:           t,
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		pipe.Stop()
		bus.Close()
		_ = st.Close()
	})

	return app
}

// PublishedPrompt is one captured voice platform publish.
type PublishedPrompt struct {
	AgentID string
	Prompt  string
}

// RecordingVoice stands in for the voice platform client: it records every
// published prompt and fails on demand.
type RecordingVoice struct {
	mu      sync.Mutex
	prompts []PublishedPrompt
	err     error
}

// NewRecordingVoice creates a voice recorder that accepts every publish.
func NewRecordingVoice() *RecordingVoice {
	return &RecordingVoice{}
}

// PublishPrompt implements the prompt publisher surface of both the pipeline
// and the project service.
func (v *RecordingVoice) PublishPrompt(_ context.Context, agentID, prompt string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	v.prompts = append(v.prompts, PublishedPrompt{AgentID: agentID, Prompt: prompt})
	return nil
}

// FailWith makes every subsequent publish return err; nil restores success.
func (v *RecordingVoice) FailWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

// Prompts returns a copy of every successful publish so far.
func (v *RecordingVoice) Prompts() []PublishedPrompt {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PublishedPrompt, len(v.prompts))
	copy(out, v.prompts)
	return out
}
