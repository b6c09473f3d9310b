package api

import (
	"time"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// StartResponse is returned by POST /api/v1/projects/:id/start.
type StartResponse struct {
	Project     *models.Project         `json:"project"`
	Script      *models.InterviewScript `json:"script"`
	SyncPending bool                    `json:"sync_pending"`
	TalkToLink  string                  `json:"talk_to_link,omitempty"`
}

// IngestResponse is returned by POST /webhook/voice and POST
// /api/v1/projects/:id/simulate. Status is "queued" or "duplicate".
type IngestResponse struct {
	ProjectID      string `json:"project_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// ReportResponse is returned by POST /api/v1/projects/:id/synthesize.
type ReportResponse struct {
	ProjectID   string    `json:"project_id"`
	Report      string    `json:"report"`
	GeneratedAt time.Time `json:"generated_at"`
}

// HealthCheck is one component's state inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// QueueHealth reports ingest queue pressure.
type QueueHealth struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
	Queue   QueueHealth            `json:"queue"`
}
