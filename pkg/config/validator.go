package config

import (
	"fmt"
	"os"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: LLM providers → agent roles → tuning → queue
	// This ensures dependencies are validated before dependents

	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateAgentRoles(); err != nil {
		return fmt.Errorf("agent role validation failed: %w", err)
	}

	if err := v.validateTuning(); err != nil {
		return fmt.Errorf("tuning validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviders.GetAll() {
		// Validate provider type
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}

		// Validate default model is not empty
		if provider.DefaultModel == "" {
			return NewValidationError("llm_provider", name, "default_model", fmt.Errorf("default_model required"))
		}

		// Ollama needs a base URL, the hosted providers have built-in endpoints
		if provider.Type == LLMProviderTypeOllama && provider.BaseURL == "" {
			return NewValidationError("llm_provider", name, "base_url", fmt.Errorf("base_url required for ollama provider"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateAgentRoles() error {
	for name, role := range v.cfg.Agents.GetAll() {
		// Validate referenced provider exists
		if role.Provider == "" {
			return NewValidationError("agent", name, "provider", fmt.Errorf("provider required"))
		}
		provider, err := v.cfg.LLMProviders.Get(role.Provider)
		if err != nil {
			return NewValidationError("agent", name, "provider", err)
		}

		// Validate the referenced provider's API key env var is set.
		// Only providers actually used by a role need credentials; unused
		// built-in providers must not block startup.
		if provider.APIKeyEnv != "" {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("agent", name, "provider", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}

		// Validate sampling parameters
		if role.Temperature < 0 || role.Temperature > 2 {
			return NewValidationError("agent", name, "temperature", fmt.Errorf("must be between 0 and 2"))
		}
		if role.MaxTokens < 1 {
			return NewValidationError("agent", name, "max_tokens", fmt.Errorf("must be at least 1"))
		}
		if role.Timeout <= 0 {
			return NewValidationError("agent", name, "timeout", fmt.Errorf("must be positive"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateTuning() error {
	t := v.cfg.Tuning

	ratios := []struct {
		field string
		value float64
	}{
		{"convergence_score_threshold", t.ConvergenceScoreThreshold},
		{"novelty_rate_threshold", t.NoveltyRateThreshold},
		{"merge_overlap_threshold", t.MergeOverlapThreshold},
		{"prune_confidence_threshold", t.PruneConfidenceThreshold},
	}
	for _, r := range ratios {
		if r.value < 0 || r.value > 1 {
			return NewValidationError("tuning", "", r.field, fmt.Errorf("must be between 0 and 1"))
		}
	}

	if t.PruneMinInterviews < 1 {
		return NewValidationError("tuning", "", "prune_min_interviews", fmt.Errorf("must be at least 1"))
	}
	if t.MaxPropositionsInScript < 1 {
		return NewValidationError("tuning", "", "max_propositions_in_script", fmt.Errorf("must be at least 1"))
	}
	if t.MaxInterviewDurationMinutes < 1 {
		return NewValidationError("tuning", "", "max_interview_duration_minutes", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue

	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count", fmt.Errorf("must be at least 1"))
	}
	if q.QueueSize < 1 {
		return NewValidationError("queue", "", "queue_size", fmt.Errorf("must be at least 1"))
	}
	if q.IngestTimeout <= 0 {
		return NewValidationError("queue", "", "ingest_timeout", fmt.Errorf("must be positive"))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}
	if q.RepublishInterval <= 0 {
		return NewValidationError("queue", "", "republish_interval", fmt.Errorf("must be positive"))
	}

	return nil
}
