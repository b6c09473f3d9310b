package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/services"
)

// createProjectHandler handles POST /api/v1/projects.
func (s *Server) createProjectHandler(c *gin.Context) {
	// 1. Bind HTTP request
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// 2. Call service; field validation happens there
	project, err := s.projects.Create(c.Request.Context(), services.CreateProjectInput{
		ID:               req.ID,
		ResearchQuestion: req.ResearchQuestion,
		InitialAngles:    req.InitialAngles,
		VoiceAgentID:     req.VoiceAgentID,
	})
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}

	// 3. Return response
	c.JSON(http.StatusCreated, project)
}

// listProjectsHandler handles GET /api/v1/projects.
func (s *Server) listProjectsHandler(c *gin.Context) {
	projects, err := s.projects.List(c.Request.Context())
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

// getProjectHandler handles GET /api/v1/projects/:id.
func (s *Server) getProjectHandler(c *gin.Context) {
	project, err := s.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	c.JSON(http.StatusOK, project)
}

// deleteProjectHandler handles DELETE /api/v1/projects/:id.
func (s *Server) deleteProjectHandler(c *gin.Context) {
	if err := s.projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// startProjectHandler handles POST /api/v1/projects/:id/start. The body is
// optional; it only carries a voice agent override.
func (s *Server) startProjectHandler(c *gin.Context) {
	// 1. Bind optional body
	var req StartProjectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	// 2. Call service
	result, err := s.projects.Start(c.Request.Context(), services.StartProjectInput{
		ProjectID:    c.Param("id"),
		VoiceAgentID: req.VoiceAgentID,
	})
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}

	// 3. Return response
	c.JSON(http.StatusOK, &StartResponse{
		Project:     result.Project,
		Script:      result.Script,
		SyncPending: result.SyncPending,
		TalkToLink:  result.TalkToLink,
	})
}

// simulateHandler handles POST /api/v1/projects/:id/simulate: a transcript
// injected as a synthetic conversation, enqueued exactly like a webhook.
func (s *Server) simulateHandler(c *gin.Context) {
	// 1. Bind HTTP request
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// 2. Call service
	result, err := s.ingest.Simulate(c.Request.Context(), services.SimulateInput{
		ProjectID:      c.Param("id"),
		Transcript:     req.Transcript,
		ConversationID: req.ConversationID,
		Language:       req.Language,
	})
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}

	// 3. Return response
	c.JSON(ingestStatus(result))
}

// synthesizeHandler handles POST /api/v1/projects/:id/synthesize.
func (s *Server) synthesizeHandler(c *gin.Context) {
	result, err := s.reports.Synthesize(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	c.JSON(http.StatusOK, &ReportResponse{
		ProjectID:   result.ProjectID,
		Report:      result.Report,
		GeneratedAt: result.GeneratedAt,
	})
}

// ingestStatus renders a SubmitResult: 202 for a queued transcript, 200 for
// a duplicate conversation acknowledged without processing.
func ingestStatus(result *services.SubmitResult) (int, *IngestResponse) {
	rsp := &IngestResponse{
		ProjectID:      result.ProjectID,
		ConversationID: result.ConversationID,
		Status:         "queued",
	}
	if result.Duplicate {
		rsp.Status = "duplicate"
		return http.StatusOK, rsp
	}
	return http.StatusAccepted, rsp
}

// listEvidenceHandler handles GET /api/v1/projects/:id/evidence.
func (s *Server) listEvidenceHandler(c *gin.Context) {
	snap, err := s.projects.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	evidence := snap.Evidence
	if evidence == nil {
		evidence = []*models.Evidence{}
	}
	c.JSON(http.StatusOK, evidence)
}

// listPropositionsHandler handles GET /api/v1/projects/:id/propositions.
func (s *Server) listPropositionsHandler(c *gin.Context) {
	snap, err := s.projects.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	propositions := snap.Propositions
	if propositions == nil {
		propositions = []*models.Proposition{}
	}
	c.JSON(http.StatusOK, propositions)
}

// listScriptsHandler handles GET /api/v1/projects/:id/scripts.
func (s *Server) listScriptsHandler(c *gin.Context) {
	snap, err := s.projects.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	scripts := snap.Scripts
	if scripts == nil {
		scripts = []*models.InterviewScript{}
	}
	c.JSON(http.StatusOK, scripts)
}

// listInterviewsHandler handles GET /api/v1/projects/:id/interviews.
func (s *Server) listInterviewsHandler(c *gin.Context) {
	snap, err := s.projects.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(mapServiceError(err))
		return
	}
	interviews := snap.Interviews
	if interviews == nil {
		interviews = []*models.Interview{}
	}
	c.JSON(http.StatusOK, interviews)
}
