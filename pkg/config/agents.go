package config

import (
	"fmt"
	"sync"
	"time"
)

// Agent role names. Each role maps to one LLM-backed pipeline stage.
const (
	// RoleAnalyst extracts evidence and proposes knowledge-base diffs.
	RoleAnalyst = "analyst"
	// RoleDesigner generates and evolves interview scripts.
	RoleDesigner = "designer"
	// RoleSynthesizer writes the research report.
	RoleSynthesizer = "synthesizer"
)

// AgentRoleConfig is the fully resolved configuration of one agent role.
type AgentRoleConfig struct {
	// LLM provider name (must exist in the provider registry)
	Provider string

	// Model override; empty means the provider's default model
	Model string

	// Sampling temperature for this role
	Temperature float64

	// Completion token cap
	MaxTokens int

	// Per-call timeout (overrides the provider timeout when set)
	Timeout time.Duration
}

// agentRoleYAML is the user-facing YAML shape. Pointer fields distinguish
// "absent" from zero so a user can legitimately set temperature: 0.
type agentRoleYAML struct {
	Provider    string         `yaml:"provider,omitempty"`
	Model       string         `yaml:"model,omitempty"`
	Temperature *float64       `yaml:"temperature,omitempty"`
	MaxTokens   *int           `yaml:"max_tokens,omitempty"`
	Timeout     *time.Duration `yaml:"timeout,omitempty"`
}

// defaultAgentRoles returns the built-in per-role defaults. The analyst runs
// cold with a large completion budget, the designer and synthesizer run
// warmer with smaller budgets.
func defaultAgentRoles() map[string]*AgentRoleConfig {
	return map[string]*AgentRoleConfig{
		RoleAnalyst: {
			Provider:    DefaultProviderName,
			Temperature: 0.3,
			MaxTokens:   8192,
			Timeout:     45 * time.Second,
		},
		RoleDesigner: {
			Provider:    DefaultProviderName,
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     45 * time.Second,
		},
		RoleSynthesizer: {
			Provider:    DefaultProviderName,
			Temperature: 0.5,
			MaxTokens:   4096,
			Timeout:     90 * time.Second,
		},
	}
}

// resolveAgentRole overlays a user YAML block onto the built-in default for
// the role. A nil overlay returns the default unchanged.
func resolveAgentRole(def *AgentRoleConfig, overlay *agentRoleYAML) *AgentRoleConfig {
	resolved := *def
	if overlay == nil {
		return &resolved
	}
	if overlay.Provider != "" {
		resolved.Provider = overlay.Provider
	}
	if overlay.Model != "" {
		resolved.Model = overlay.Model
	}
	if overlay.Temperature != nil {
		resolved.Temperature = *overlay.Temperature
	}
	if overlay.MaxTokens != nil {
		resolved.MaxTokens = *overlay.MaxTokens
	}
	if overlay.Timeout != nil {
		resolved.Timeout = *overlay.Timeout
	}
	return &resolved
}

// AgentRegistry stores resolved agent role configurations in memory with thread-safe access
type AgentRegistry struct {
	roles map[string]*AgentRoleConfig
	mu    sync.RWMutex
}

// NewAgentRegistry creates a new agent role registry
func NewAgentRegistry(roles map[string]*AgentRoleConfig) *AgentRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*AgentRoleConfig, len(roles))
	for k, v := range roles {
		copied[k] = v
	}
	return &AgentRegistry{
		roles: copied,
	}
}

// Get retrieves an agent role configuration by name (thread-safe)
func (r *AgentRegistry) Get(name string) (*AgentRoleConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, exists := r.roles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentRoleNotFound, name)
	}
	return role, nil
}

// GetAll returns all agent role configurations (thread-safe, returns copy)
func (r *AgentRegistry) GetAll() map[string]*AgentRoleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]*AgentRoleConfig, len(r.roles))
	for k, v := range r.roles {
		result[k] = v
	}
	return result
}

// Has checks if an agent role exists in the registry (thread-safe)
func (r *AgentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.roles[name]
	return exists
}

// Len returns the number of agent roles in the registry (thread-safe)
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles)
}
