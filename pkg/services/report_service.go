package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// ReportWriter is the Synthesizer surface the report service needs.
type ReportWriter interface {
	WriteReport(ctx context.Context, snap *models.Snapshot) (string, error)
}

// ReportResult is a synthesized report plus when it was generated.
type ReportResult struct {
	ProjectID   string
	Report      string
	GeneratedAt time.Time
}

// ReportService turns project snapshots into persisted research reports.
type ReportService struct {
	store     *store.Store
	writer    ReportWriter
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewReportService creates a ReportService.
func NewReportService(st *store.Store, writer ReportWriter, publisher *events.Publisher, logger *slog.Logger) *ReportService {
	if st == nil {
		panic("NewReportService: store must not be nil")
	}
	if writer == nil {
		panic("NewReportService: writer must not be nil")
	}
	if publisher == nil {
		panic("NewReportService: publisher must not be nil")
	}
	if logger == nil {
		panic("NewReportService: logger must not be nil")
	}
	return &ReportService{
		store:     st,
		writer:    writer,
		publisher: publisher,
		logger:    logger.With("component", "report_service"),
	}
}

// Synthesize writes a report over the project's full snapshot, persists it
// and moves the project to done. Evidence committed later flips the
// report_stale bit; re-synthesizing clears it.
func (s *ReportService) Synthesize(ctx context.Context, projectID string) (*ReportResult, error) {
	snap, err := s.store.Load(projectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	report, err := s.writer.WriteReport(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize report: %w", err)
	}

	stale := false
	commit := &models.StoreDiff{
		Report:        &report,
		ReportStale:   &stale,
		ProjectStatus: models.ProjectDone,
	}
	if err := s.store.Commit(projectID, commit); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}

	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload project: %w", err)
	}
	generatedAt := time.Now().UTC()
	if project.ReportGeneratedAt != nil {
		generatedAt = *project.ReportGeneratedAt
	}

	s.publisher.PublishReportReady(projectID, generatedAt)
	s.logger.Info("report synthesized",
		"project_id", projectID,
		"interviews", len(snap.Interviews),
		"report_chars", len(report))

	return &ReportResult{
		ProjectID:   projectID,
		Report:      report,
		GeneratedAt: generatedAt,
	}, nil
}
