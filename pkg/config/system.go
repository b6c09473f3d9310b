package config

import "time"

// SystemConfig holds resolved system-wide infrastructure settings.
type SystemConfig struct {
	// DataPath is the bolt database file (default: "./data/eidetic.db")
	DataPath string

	// PublicBaseURL is the externally reachable base URL of this server,
	// used when rendering webhook setup hints (empty = omitted)
	PublicBaseURL string

	// DefaultProject receives webhooks that carry no project routing
	// information (empty = such webhooks are rejected)
	DefaultProject string

	Voice *VoiceConfig
}

// VoiceConfig holds resolved voice-platform (ElevenLabs) integration configuration.
type VoiceConfig struct {
	// Env var name containing the platform API key (default: "ELEVENLABS_API_KEY")
	APIKeyEnv string

	// Env var name containing the webhook HMAC secret (default:
	// "ELEVENLABS_WEBHOOK_SECRET"). An empty resolved secret disables
	// signature verification.
	WebhookSecretEnv string

	// Platform API base URL (default: "https://api.elevenlabs.io/v1")
	BaseURL string

	// Maximum age of a signed webhook timestamp (default: 5m)
	WebhookTolerance time.Duration

	// Per-request timeout for prompt publishes (default: 15s)
	PublishTimeout time.Duration

	// Retry budget for transient publish failures
	MaxRetries   int           // default: 3
	RetryBackoff time.Duration // default: 800ms
}
