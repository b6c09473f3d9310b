package models

import "time"

// Interview is one completed conversation delivered by the voice runtime.
type Interview struct {
	ID             string    `json:"id"`              // monotonic per project, "INT_003"
	ConversationID string    `json:"conversation_id"` // external id, idempotency key
	Transcript     string    `json:"transcript"`
	ReceivedAt     time.Time `json:"received_at"`

	// ScriptVersionUsed is the script version active when the conversation
	// started, 0 when unknown (e.g. webhook predates version tracking).
	ScriptVersionUsed int    `json:"script_version_used,omitempty"`
	Language          string `json:"language,omitempty"`
}
