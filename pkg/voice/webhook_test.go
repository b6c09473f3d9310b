package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookFlatPayload(t *testing.T) {
	body := []byte(`{
		"conversation_id": "conv-123",
		"transcript": "Interviewer: hello\nRespondent: hi",
		"agent_id": "agent-7",
		"project_id": "lunar",
		"language": "en",
		"event": "post_call_transcription"
	}`)

	tr, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "conv-123", tr.ConversationID)
	assert.Equal(t, "Interviewer: hello\nRespondent: hi", tr.Text)
	assert.Equal(t, "agent-7", tr.AgentID)
	assert.Equal(t, "lunar", tr.ProjectID)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, "post_call_transcription", tr.Event)
}

func TestParseWebhookNestedDataPayload(t *testing.T) {
	body := []byte(`{
		"type": "post_call_transcription",
		"data": {
			"id": "conv-456",
			"agent_id": "agent-9",
			"transcript": [
				{"speaker": "agent", "text": "How was your last night shift?"},
				{"speaker": "user", "text": "Exhausting, honestly."},
				{"speaker": "user", "text": ""}
			]
		}
	}`)

	tr, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "conv-456", tr.ConversationID)
	assert.Equal(t, "agent: How was your last night shift?\nuser: Exhausting, honestly.", tr.Text)
	assert.Equal(t, "agent-9", tr.AgentID)
	assert.Equal(t, "post_call_transcription", tr.Event)
}

func TestParseWebhookTranscriptShapes(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"string list": {
			body: `{"conversation_id": "c1", "transcript": ["line one", "line two"]}`,
			want: "line one\nline two",
		},
		"text object": {
			body: `{"conversation_id": "c1", "transcript": {"text": "just the text"}}`,
			want: "just the text",
		},
		"segments object": {
			body: `{"conversation_id": "c1", "transcript": {"segments": [{"speaker": "user", "text": "nested"}]}}`,
			want: "user: nested",
		},
		"transcript_text fallback": {
			body: `{"conversation_id": "c1", "data": {"transcript_text": "fallback text"}}`,
			want: "fallback text",
		},
		"speakerless objects": {
			body: `{"conversation_id": "c1", "transcript": [{"text": "no speaker"}]}`,
			want: "no speaker",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tr, err := ParseWebhook([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tr.Text)
		})
	}
}

func TestParseWebhookMetadataRouting(t *testing.T) {
	body := []byte(`{
		"conversation_id": "c1",
		"transcript": "text",
		"metadata": {"project_id": "lunar", "agent_id": "agent-2", "language": "sv"}
	}`)

	tr, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "lunar", tr.ProjectID)
	assert.Equal(t, "agent-2", tr.AgentID)
	assert.Equal(t, "sv", tr.Language)
}

func TestParseWebhookNumericConversationID(t *testing.T) {
	body := []byte(`{"conversation_id": 42, "transcript": "text"}`)

	tr, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "42", tr.ConversationID)
}

func TestParseWebhookRejectsBadPayloads(t *testing.T) {
	cases := map[string]struct {
		body      string
		wantField string
	}{
		"not json":               {body: `{{{`, wantField: "body"},
		"missing conversation":   {body: `{"transcript": "text"}`, wantField: "conversation_id"},
		"blank conversation":     {body: `{"conversation_id": "  ", "transcript": "text"}`, wantField: "conversation_id"},
		"missing transcript":     {body: `{"conversation_id": "c1"}`, wantField: "transcript"},
		"whitespace transcript":  {body: `{"conversation_id": "c1", "transcript": "   "}`, wantField: "transcript"},
		"empty transcript list":  {body: `{"conversation_id": "c1", "transcript": []}`, wantField: "transcript"},
		"unusable transcript map": {body: `{"conversation_id": "c1", "transcript": {"foo": 1}}`, wantField: "transcript"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebhook([]byte(tc.body))
			require.Error(t, err)
			var whErr *WebhookError
			require.ErrorAs(t, err, &whErr)
			assert.Equal(t, tc.wantField, whErr.Field)
		})
	}
}
