package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidetic-ai/eidetic/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the process's own components are
// checked; the voice platform and LLM providers are excluded so an external
// outage cannot make an orchestrator restart this service.
func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.store.ListProjects(); err != nil {
		status = healthStatusUnhealthy
		checks["store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["store"] = HealthCheck{Status: healthStatusHealthy}
	}

	queue := QueueHealth{}
	if s.queue != nil {
		queue.Depth = s.queue.Depth()
		queue.Capacity = s.queue.Capacity()
		if queue.Capacity > 0 && queue.Depth >= queue.Capacity {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["queue"] = HealthCheck{Status: healthStatusDegraded, Message: "ingest queue is full"}
		} else {
			checks["queue"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
		Queue:   queue,
	})
}
