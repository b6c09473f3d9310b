package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eidetic-ai/eidetic/pkg/services"
	"github.com/eidetic-ai/eidetic/pkg/voice"
)

// maxWebhookBody caps how much of a webhook payload is read. Post-call
// payloads are transcripts plus metadata; anything near this limit is noise.
const maxWebhookBody = 4 << 20

// voiceWebhookHandler handles POST /webhook/voice, the voice platform's
// post-call delivery. The signature covers the exact raw bytes, so the body
// is read before any parsing.
func (s *Server) voiceWebhookHandler(c *gin.Context) {
	// 1. Read raw body
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	// 2. Verify signature
	header := c.GetHeader("ElevenLabs-Signature")
	if header == "" {
		header = c.GetHeader("X-ElevenLabs-Signature")
	}
	if !voice.VerifySignature(body, header, s.webhookSecret, s.webhookTolerance, time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	// 3. Parse payload
	transcript, err := voice.ParseWebhook(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 4. Route and enqueue
	result, err := s.ingest.SubmitTranscript(c.Request.Context(), services.SubmitTranscriptInput{
		ProjectID:      transcript.ProjectID,
		AgentID:        transcript.AgentID,
		ConversationID: transcript.ConversationID,
		Transcript:     transcript.Text,
		Language:       transcript.Language,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no project accepts this conversation"})
			return
		}
		c.JSON(mapServiceError(err))
		return
	}

	// 5. Acknowledge
	c.JSON(ingestStatus(result))
}
