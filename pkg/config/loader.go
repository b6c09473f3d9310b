package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// EideticYAMLConfig represents the complete eidetic.yaml file structure
type EideticYAMLConfig struct {
	System *SystemYAMLConfig         `yaml:"system"`
	Agents map[string]*agentRoleYAML `yaml:"agents"`
	Tuning *TuningConfig             `yaml:"tuning"`
	Queue  *QueueConfig              `yaml:"queue"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	DataPath       string           `yaml:"data_path"`
	PublicBaseURL  string           `yaml:"public_base_url"`
	DefaultProject string           `yaml:"default_project"`
	Voice          *VoiceYAMLConfig `yaml:"voice"`
}

// VoiceYAMLConfig holds voice-platform settings from YAML.
type VoiceYAMLConfig struct {
	APIKeyEnv        string        `yaml:"api_key_env,omitempty"`
	WebhookSecretEnv string        `yaml:"webhook_secret_env,omitempty"`
	BaseURL          string        `yaml:"base_url,omitempty"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance,omitempty"`
	PublishTimeout   time.Duration `yaml:"publish_timeout,omitempty"`
	MaxRetries       int           `yaml:"max_retries,omitempty"`
	RetryBackoff     time.Duration `yaml:"retry_backoff,omitempty"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Build in-memory registries
//  6. Apply default values
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	// 1. Load configuration files
	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Validate all configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agent_roles", stats.AgentRoles,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load eidetic.yaml (contains system, agents, tuning, queue)
	eideticConfig, err := loader.loadEideticYAML()
	if err != nil {
		return nil, NewLoadError("eidetic.yaml", err)
	}

	// 2. Load llm-providers.yaml (optional; built-in providers cover the common cases)
	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Get built-in configuration
	builtin := GetBuiltinConfig()

	// 4. Merge built-in + user-defined providers (user overrides built-in)
	llmProvidersMerged := mergeLLMProviders(builtin.LLMProviders, llmProviders)

	// 5. Resolve agent roles (YAML overlays built-in role defaults)
	roles := make(map[string]*AgentRoleConfig, len(builtin.AgentRoles))
	for name, def := range builtin.AgentRoles {
		roles[name] = resolveAgentRole(def, nil)
	}
	for name, overlay := range eideticConfig.Agents {
		def, ok := roles[name]
		if !ok {
			return nil, NewValidationError("agent", name, "", fmt.Errorf("%w: unknown agent role", ErrInvalidValue))
		}
		roles[name] = resolveAgentRole(def, overlay)
	}

	// 6. Build registries
	agentRegistry := NewAgentRegistry(roles)
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	// Resolve tuning config (merge user YAML with built-in defaults)
	// Start with defaults, then merge user config on top to preserve unset defaults
	tuningConfig := DefaultTuningConfig()
	if eideticConfig.Tuning != nil {
		// Merge user-provided config into defaults (non-zero values override)
		if err := mergo.Merge(tuningConfig, eideticConfig.Tuning, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge tuning config: %w", err)
		}
	}

	// Resolve queue config the same way
	queueConfig := DefaultQueueConfig()
	if eideticConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, eideticConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	// Resolve system config (data path + voice platform)
	systemCfg := resolveSystemConfig(eideticConfig.System)

	return &Config{
		configDir:    configDir,
		System:       systemCfg,
		Tuning:       tuningConfig,
		Queue:        queueConfig,
		Agents:       agentRegistry,
		LLMProviders: llmProviderRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadEideticYAML() (*EideticYAMLConfig, error) {
	var config EideticYAMLConfig

	// Initialize map to avoid nil map
	config.Agents = make(map[string]*agentRoleYAML)

	if err := l.loadYAML("eidetic.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var config LLMProvidersYAMLConfig

	// Initialize map to avoid nil map
	config.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		// The file is optional: built-in providers plus environment API keys
		// are a complete setup.
		if errors.Is(err, ErrConfigNotFound) {
			return config.LLMProviders, nil
		}
		return nil, err
	}

	return config.LLMProviders, nil
}

// mergeLLMProviders merges user providers over built-ins by name. Each entry
// replaces wholesale; there is no per-field merge across files.
func mergeLLMProviders(builtin, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	merged := make(map[string]*LLMProviderConfig, len(builtin)+len(user))
	for name, p := range builtin {
		cfg := p
		merged[name] = &cfg
	}
	for name, p := range user {
		cfg := p
		applyProviderDefaults(&cfg)
		merged[name] = &cfg
	}
	return merged
}

// applyProviderDefaults fills unset timeout/retry fields on user-defined providers.
func applyProviderDefaults(p *LLMProviderConfig) {
	if p.Timeout == 0 {
		p.Timeout = 45 * time.Second
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = 800 * time.Millisecond
	}
}

// resolveSystemConfig resolves system configuration from YAML, applying defaults.
func resolveSystemConfig(sys *SystemYAMLConfig) *SystemConfig {
	cfg := &SystemConfig{
		DataPath: "./data/eidetic.db",
	}

	if sys != nil {
		if sys.DataPath != "" {
			cfg.DataPath = sys.DataPath
		}
		cfg.PublicBaseURL = sys.PublicBaseURL
		cfg.DefaultProject = sys.DefaultProject
	}

	var voiceYAML *VoiceYAMLConfig
	if sys != nil {
		voiceYAML = sys.Voice
	}
	cfg.Voice = resolveVoiceConfig(voiceYAML)

	return cfg
}

// resolveVoiceConfig resolves voice-platform configuration from YAML, applying defaults.
func resolveVoiceConfig(v *VoiceYAMLConfig) *VoiceConfig {
	cfg := &VoiceConfig{
		APIKeyEnv:        "ELEVENLABS_API_KEY",
		WebhookSecretEnv: "ELEVENLABS_WEBHOOK_SECRET",
		BaseURL:          "https://api.elevenlabs.io/v1",
		WebhookTolerance: 5 * time.Minute,
		PublishTimeout:   15 * time.Second,
		MaxRetries:       3,
		RetryBackoff:     800 * time.Millisecond,
	}

	if v == nil {
		return cfg
	}

	if v.APIKeyEnv != "" {
		cfg.APIKeyEnv = v.APIKeyEnv
	}
	if v.WebhookSecretEnv != "" {
		cfg.WebhookSecretEnv = v.WebhookSecretEnv
	}
	if v.BaseURL != "" {
		cfg.BaseURL = v.BaseURL
	}
	if v.WebhookTolerance > 0 {
		cfg.WebhookTolerance = v.WebhookTolerance
	}
	if v.PublishTimeout > 0 {
		cfg.PublishTimeout = v.PublishTimeout
	}
	if v.MaxRetries > 0 {
		cfg.MaxRetries = v.MaxRetries
	}
	if v.RetryBackoff > 0 {
		cfg.RetryBackoff = v.RetryBackoff
	}

	return cfg
}
