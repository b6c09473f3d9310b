package config

import (
	"sync"
	"time"
)

// DefaultProviderName is the provider agent roles fall back to when their
// YAML block names none.
const DefaultProviderName = "mistral-default"

// BuiltinConfig holds all built-in configuration data.
// This provides default LLM providers and agent role settings so that a
// bare config directory with just API keys in the environment still works.
type BuiltinConfig struct {
	LLMProviders map[string]LLMProviderConfig
	AgentRoles   map[string]*AgentRoleConfig
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		LLMProviders: initBuiltinLLMProviders(),
		AgentRoles:   defaultAgentRoles(),
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"mistral-default": {
			Type:         LLMProviderTypeMistral,
			DefaultModel: "mistral-large-latest",
			APIKeyEnv:    "MISTRAL_API_KEY",
			Timeout:      45 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 800 * time.Millisecond,
		},
		"openai-default": {
			Type:         LLMProviderTypeOpenAI,
			DefaultModel: "gpt-4o",
			APIKeyEnv:    "OPENAI_API_KEY",
			Timeout:      45 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 800 * time.Millisecond,
		},
		"ollama-default": {
			Type:         LLMProviderTypeOllama,
			DefaultModel: "llama3.1",
			BaseURL:      "http://localhost:11434",
			Timeout:      120 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 800 * time.Millisecond,
		},
	}
}
