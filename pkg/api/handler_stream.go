package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// streamPingInterval is how often an SSE keepalive event is sent so idle
// connections survive proxies and load balancers.
const streamPingInterval = 15 * time.Second

// streamHandler handles GET /api/v1/projects/:id/stream. Server-sent events:
// every bus event published for the project, plus periodic pings. The stream
// ends when the client disconnects or the project's channel closes (project
// deleted, bus shut down).
func (s *Server) streamHandler(c *gin.Context) {
	projectID := c.Param("id")

	// Reject unknown projects before holding a connection open.
	if _, err := s.projects.Get(c.Request.Context(), projectID); err != nil {
		c.JSON(mapServiceError(err))
		return
	}

	sub, err := s.bus.Subscribe(projectID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	// Flush the handshake right away so clients see the subscription before
	// the first event or ping.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.Flush()

	s.logger.Debug("sse stream opened", "project_id", projectID)
	defer s.logger.Debug("sse stream closed", "project_id", projectID)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev.Data)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
