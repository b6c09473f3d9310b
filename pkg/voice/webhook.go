package voice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WebhookError describes a webhook payload the adapter could not accept.
// Handlers map it to a 400 response.
type WebhookError struct {
	Field   string
	Message string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("invalid webhook payload: %s %s", e.Field, e.Message)
}

// Transcript is one parsed webhook delivery. ConversationID doubles as the
// idempotency key; AgentID and ProjectID are routing hints, either may be
// empty.
type Transcript struct {
	ConversationID string
	Text           string
	AgentID        string
	ProjectID      string
	Language       string
	Event          string
}

// ParseWebhook extracts a Transcript from a platform webhook body. Payload
// shapes in the wild vary between flat and data-nested, and transcripts
// arrive as plain strings, segment lists or {text|segments} objects, so
// extraction is tolerant: every known location is tried in order.
func ParseWebhook(body []byte) (*Transcript, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &WebhookError{Field: "body", Message: "is not valid JSON"}
	}

	data, _ := payload["data"].(map[string]any)
	metadata, _ := payload["metadata"].(map[string]any)

	conversationID := firstString(
		payload["conversation_id"], data["conversation_id"], data["id"], payload["id"])
	if conversationID == "" {
		return nil, &WebhookError{Field: "conversation_id", Message: "is missing"}
	}

	raw := firstValue(
		payload["transcript"], data["transcript"], data["transcript_text"], payload["transcript_text"])
	text := strings.TrimSpace(extractText(raw))
	if text == "" {
		return nil, &WebhookError{Field: "transcript", Message: "is missing"}
	}

	return &Transcript{
		ConversationID: conversationID,
		Text:           text,
		AgentID:        firstString(payload["agent_id"], data["agent_id"], metadata["agent_id"]),
		ProjectID:      firstString(payload["project_id"], metadata["project_id"]),
		Language:       firstString(payload["language"], data["language"], metadata["language"]),
		Event:          firstString(payload["event"], payload["type"]),
	}, nil
}

// extractText flattens the transcript field's possible shapes into one
// speaker-prefixed text block.
func extractText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			switch entry := item.(type) {
			case string:
				lines = append(lines, entry)
			case map[string]any:
				speaker := strings.TrimSpace(stringValue(entry["speaker"]))
				text := strings.TrimSpace(stringValue(entry["text"]))
				if text == "" {
					continue
				}
				if speaker != "" {
					lines = append(lines, speaker+": "+text)
				} else {
					lines = append(lines, text)
				}
			}
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		if text, ok := t["text"]; ok {
			return stringValue(text)
		}
		if segments, ok := t["segments"]; ok {
			return extractText(segments)
		}
	}
	return ""
}

// firstString returns the first candidate with a non-empty string form.
func firstString(candidates ...any) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(stringValue(c)); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first non-nil, non-empty-string candidate.
func firstValue(candidates ...any) any {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if s, ok := c.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return c
	}
	return nil
}

// stringValue renders scalar JSON values as strings; numeric ids arrive as
// float64 from encoding/json.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}
