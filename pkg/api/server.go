// Package api exposes the engine over HTTP: project lifecycle routes, the
// voice-platform webhook, per-project SSE event streams and health.
//
// Handlers stay thin: bind and validate the request, call the service layer,
// map the service error to a status code. Domain rules live in pkg/services.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/services"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// QueueStats is the pipeline surface health reporting reads.
type QueueStats interface {
	Depth() int
	Capacity() int
}

// Server is the HTTP front of the engine.
type Server struct {
	engine *gin.Engine
	http   *http.Server

	projects *services.ProjectService
	ingest   *services.IngestService
	reports  *services.ReportService

	store *store.Store
	bus   *events.Bus
	queue QueueStats

	// webhookSecret is resolved once at construction; empty disables
	// signature verification.
	webhookSecret    string
	webhookTolerance time.Duration

	logger *slog.Logger
}

// NewServer assembles the router and the underlying http.Server. The caller
// controls the gin mode; NewServer does not touch it.
func NewServer(cfg *config.Config, projects *services.ProjectService, ingest *services.IngestService,
	reports *services.ReportService, st *store.Store, bus *events.Bus, queue QueueStats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	secret := ""
	tolerance := 5 * time.Minute
	if cfg != nil && cfg.System != nil && cfg.System.Voice != nil {
		secret = os.Getenv(cfg.System.Voice.WebhookSecretEnv)
		tolerance = cfg.System.Voice.WebhookTolerance
	}

	s := &Server{
		projects:         projects,
		ingest:           ingest,
		reports:          reports,
		store:            st,
		bus:              bus,
		queue:            queue,
		webhookSecret:    secret,
		webhookTolerance: tolerance,
		logger:           logger.With("component", "api"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))
	engine.Use(securityHeaders())
	s.engine = engine
	s.registerRoutes()

	s.http = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.POST("/webhook/voice", s.voiceWebhookHandler)

	projects := s.engine.Group("/api/v1/projects")
	projects.POST("", s.createProjectHandler)
	projects.GET("", s.listProjectsHandler)
	projects.GET("/:id", s.getProjectHandler)
	projects.DELETE("/:id", s.deleteProjectHandler)
	projects.POST("/:id/start", s.startProjectHandler)
	projects.POST("/:id/simulate", s.simulateHandler)
	projects.POST("/:id/synthesize", s.synthesizeHandler)
	projects.GET("/:id/evidence", s.listEvidenceHandler)
	projects.GET("/:id/propositions", s.listPropositionsHandler)
	projects.GET("/:id/scripts", s.listScriptsHandler)
	projects.GET("/:id/interviews", s.listInterviewsHandler)
	projects.GET("/:id/stream", s.streamHandler)
}

// Start serves on addr until the listener fails or Shutdown is called. A
// clean shutdown surfaces as http.ErrServerClosed.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info("http server listening", "addr", addr)
	return s.http.ListenAndServe()
}

// StartWithListener serves on an already bound listener. Tests use this to
// serve on an ephemeral port without racing on the address.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.http.Serve(ln)
}

// Shutdown stops the listener and drains in-flight requests. Close the event
// bus first so open SSE streams see their channels close and return.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
