package api

// CreateProjectRequest is the HTTP request body for POST /api/v1/projects.
type CreateProjectRequest struct {
	ID               string   `json:"id"`
	ResearchQuestion string   `json:"research_question"`
	InitialAngles    []string `json:"initial_angles,omitempty"`
	VoiceAgentID     string   `json:"voice_agent_id,omitempty"`
}

// StartProjectRequest is the optional body for POST /api/v1/projects/:id/start.
type StartProjectRequest struct {
	VoiceAgentID string `json:"voice_agent_id,omitempty"`
}

// SimulateRequest is the HTTP request body for POST /api/v1/projects/:id/simulate.
type SimulateRequest struct {
	Transcript     string `json:"transcript"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
}
