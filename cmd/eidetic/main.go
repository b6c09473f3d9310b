// Eidetic research engine server: exposes the HTTP API, receives voice
// webhooks, and runs the transcript ingestion pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/agent"
	"github.com/eidetic-ai/eidetic/pkg/api"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/reconciler"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/services"
	"github.com/eidetic-ai/eidetic/pkg/store"
	"github.com/eidetic-ai/eidetic/pkg/voice"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildOracle resolves an agent role to its LLM client: role config names a
// provider, the provider registry supplies the transport settings.
func buildOracle(cfg *config.Config, role string, logger *slog.Logger) (*llm.Client, *config.AgentRoleConfig, error) {
	roleCfg, err := cfg.Agents.Get(role)
	if err != nil {
		return nil, nil, err
	}
	providerCfg, err := cfg.LLMProviders.Get(roleCfg.Provider)
	if err != nil {
		return nil, nil, err
	}
	oracle, err := llm.NewClient(roleCfg.Provider, providerCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return oracle, roleCfg, nil
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	logger := slog.Default()

	slog.Info("Starting Eidetic",
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the store
	st, err := store.Open(cfg.System.DataPath)
	if err != nil {
		slog.Error("Failed to open store", "path", cfg.System.DataPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()
	slog.Info("Store opened", "path", cfg.System.DataPath)

	// 3. Resolve one LLM oracle per agent role
	analystOracle, analystRole, err := buildOracle(cfg, config.RoleAnalyst, logger)
	if err != nil {
		slog.Error("Failed to build analyst oracle", "error", err)
		os.Exit(1)
	}
	designerOracle, designerRole, err := buildOracle(cfg, config.RoleDesigner, logger)
	if err != nil {
		slog.Error("Failed to build designer oracle", "error", err)
		os.Exit(1)
	}
	synthOracle, synthRole, err := buildOracle(cfg, config.RoleSynthesizer, logger)
	if err != nil {
		slog.Error("Failed to build synthesizer oracle", "error", err)
		os.Exit(1)
	}

	// 4. Agents
	analyst := agent.NewAnalyst(analystOracle, analystRole, logger)
	designer := agent.NewDesigner(designerOracle, designerRole, cfg.Tuning, logger)
	synthesizer := agent.NewSynthesizer(synthOracle, synthRole, logger)
	guard := safety.NewGuard(logger)
	rec := reconciler.New(cfg.Tuning, logger)
	slog.Info("Agents initialized")

	// 5. Event bus
	bus := events.NewBus(0, logger)
	defer bus.Close()
	publisher := events.NewPublisher(bus)

	// 6. Voice platform client
	voiceClient := voice.NewClient(cfg.System.Voice, logger)
	if !voiceClient.Configured() {
		slog.Warn("Voice API key is not set; prompt publishes will fail and be retried, use the simulate endpoint for local runs",
			"env", cfg.System.Voice.APIKeyEnv)
	}

	// 7. Ingestion pipeline and republish loop (before the HTTP server so
	// webhooks always find a running queue)
	pipe := pipeline.New(st, analyst, designer, rec, guard, publisher, voiceClient, cfg.Queue, cfg.Tuning, logger)
	pipe.Start(ctx)

	republisher := pipeline.NewRepublisher(pipe, cfg.Queue.RepublishInterval)
	republisher.Start(ctx)

	// 8. Services
	projectService := services.NewProjectService(st, designer, guard, publisher, bus, voiceClient, cfg.Tuning, logger)
	ingestService := services.NewIngestService(st, pipe, cfg.System.DefaultProject, logger)
	reportService := services.NewReportService(st, synthesizer, publisher, logger)
	slog.Info("Services initialized")

	// 9. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, projectService, ingestService, reportService, st, bus, pipe, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Eidetic started successfully",
		"workers", cfg.Queue.WorkerCount,
		"queue_size", cfg.Queue.QueueSize,
		"default_project", cfg.System.DefaultProject)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	// Stop the republisher first; it only retries work the pipeline created.
	republisher.Stop()

	// Drain in-flight ingestions.
	done := make(chan struct{})
	go func() {
		pipe.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Pipeline stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, abandoning in-flight ingestions")
	}

	// Close the bus so open SSE streams end, then stop the HTTP server with
	// its own timeout budget.
	bus.Close()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
