// Package config loads and validates the engine configuration from a
// directory of YAML files (eidetic.yaml, llm-providers.yaml), expanding
// {{.VAR}} environment references and filling built-in defaults.
package config

// Config is the fully resolved, validated configuration.
type Config struct {
	configDir string

	System *SystemConfig
	Tuning *TuningConfig
	Queue  *QueueConfig

	Agents       *AgentRegistry
	LLMProviders *LLMProviderRegistry
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats summarizes registry sizes for startup logging.
type Stats struct {
	AgentRoles   int
	LLMProviders int
}

// Stats returns registry counts.
func (c *Config) Stats() Stats {
	return Stats{
		AgentRoles:   c.Agents.Len(),
		LLMProviders: c.LLMProviders.Len(),
	}
}
