package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validTestConfig builds a Config that passes validation, for tests to break
// one field at a time.
func validTestConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("MISTRAL_API_KEY", "test-key")

	providers := map[string]*LLMProviderConfig{
		"mistral-default": {
			Type:         LLMProviderTypeMistral,
			DefaultModel: "mistral-large-latest",
			APIKeyEnv:    "MISTRAL_API_KEY",
			Timeout:      45 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 800 * time.Millisecond,
		},
	}
	roles := defaultAgentRoles()

	return &Config{
		System:       resolveSystemConfig(nil),
		Tuning:       DefaultTuningConfig(),
		Queue:        DefaultQueueConfig(),
		Agents:       NewAgentRegistry(roles),
		LLMProviders: NewLLMProviderRegistry(providers),
	}
}

func TestValidateAllPasses(t *testing.T) {
	cfg := validTestConfig(t)
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateInvalidProviderType(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.LLMProviders = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"bad": {Type: "groq", DefaultModel: "m"},
	})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid provider type")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "llm_provider", verr.Component)
	assert.Equal(t, "bad", verr.ID)
}

func TestValidateProviderMissingModel(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.LLMProviders = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"mistral-default": {Type: LLMProviderTypeMistral, APIKeyEnv: "MISTRAL_API_KEY"},
	})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_model required")
}

func TestValidateOllamaRequiresBaseURL(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.LLMProviders = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"local": {Type: LLMProviderTypeOllama, DefaultModel: "llama3.1"},
	})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url required")
}

func TestValidateAgentRoleUnknownProvider(t *testing.T) {
	cfg := validTestConfig(t)
	roles := defaultAgentRoles()
	roles[RoleAnalyst].Provider = "missing-provider"
	cfg.Agents = NewAgentRegistry(roles)

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMProviderNotFound)
	assert.Contains(t, err.Error(), "missing-provider")
}

func TestValidateAgentRoleMissingAPIKey(t *testing.T) {
	cfg := validTestConfig(t)
	// validTestConfig sets MISTRAL_API_KEY; point the provider at an env var
	// that is guaranteed unset instead.
	cfg.LLMProviders = NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"mistral-default": {
			Type:         LLMProviderTypeMistral,
			DefaultModel: "mistral-large-latest",
			APIKeyEnv:    "EIDETIC_TEST_UNSET_KEY",
		},
	})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EIDETIC_TEST_UNSET_KEY is not set")
}

func TestValidateAgentRoleBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *AgentRoleConfig)
		wantErr string
	}{
		{
			name:    "temperature above cap",
			mutate:  func(r *AgentRoleConfig) { r.Temperature = 2.5 },
			wantErr: "temperature",
		},
		{
			name:    "zero max tokens",
			mutate:  func(r *AgentRoleConfig) { r.MaxTokens = 0 },
			wantErr: "max_tokens",
		},
		{
			name:    "zero timeout",
			mutate:  func(r *AgentRoleConfig) { r.Timeout = 0 },
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			roles := defaultAgentRoles()
			tt.mutate(roles[RoleDesigner])
			cfg.Agents = NewAgentRegistry(roles)

			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTuningBounds(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Tuning.MergeOverlapThreshold = 1.2

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_overlap_threshold")

	cfg = validTestConfig(t)
	cfg.Tuning.PruneMinInterviews = 0

	err = NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune_min_interviews")
}

func TestValidateQueueBounds(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Queue.WorkerCount = 0

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_count")

	cfg = validTestConfig(t)
	cfg.Queue.IngestTimeout = 0

	err = NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest_timeout")
}
