// Package config defines maestro.yaml: the registry endpoint, logging,
// observability, and the stub agents hosted by `maestro serve`.
package config

import (
	"fmt"

	"github.com/maestro-flow/maestro/pkg/observability"
)

// Stub skill behaviors for agents hosted by `maestro serve`.
const (
	BehaviorEcho   = "echo"
	BehaviorStatic = "static"
)

// Config is the root of maestro.yaml.
type Config struct {
	Registry RegistryConfig              `yaml:"registry"`
	Logging  LoggingConfig               `yaml:"logging"`
	Serve    ServeConfig                 `yaml:"serve"`
	Metrics  observability.MetricsConfig `yaml:"metrics"`
	Tracing  observability.TracerConfig  `yaml:"tracing"`
}

// RegistryConfig points at the OCI registry holding workflows and agent
// cards.
type RegistryConfig struct {
	URL        string `yaml:"url"`
	DefaultTag string `yaml:"default_tag"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServeConfig configures `maestro serve`: the listen address and the stub
// agents it hosts.
type ServeConfig struct {
	Host    string            `yaml:"host"`
	Port    int               `yaml:"port"`
	BaseURL string            `yaml:"base_url"`
	Agents  []StubAgentConfig `yaml:"agents"`
}

// StubAgentConfig declares one hosted stub agent.
type StubAgentConfig struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description"`
	Skills      []StubSkillConfig `yaml:"skills"`
}

// StubSkillConfig declares one stub skill. Behavior "echo" returns the
// incoming params; "static" returns Value.
type StubSkillConfig struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Behavior    string `yaml:"behavior"`
	Value       any    `yaml:"value"`
}

// SetDefaults fills in omitted fields.
func (c *Config) SetDefaults() {
	if c.Registry.URL == "" {
		c.Registry.URL = "http://localhost:5000"
	}
	if c.Registry.DefaultTag == "" {
		c.Registry.DefaultTag = "v1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Serve.Host == "" {
		c.Serve.Host = "127.0.0.1"
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = 8080
	}
	for ai := range c.Serve.Agents {
		agent := &c.Serve.Agents[ai]
		if agent.Version == "" {
			agent.Version = "1.0.0"
		}
		for si := range agent.Skills {
			if agent.Skills[si].Behavior == "" {
				agent.Skills[si].Behavior = BehaviorEcho
			}
		}
	}
}

// Validate checks the configuration after defaults.
func (c *Config) Validate() error {
	if c.Registry.URL == "" {
		return fmt.Errorf("registry.url is required")
	}

	seen := make(map[string]bool)
	for _, agent := range c.Serve.Agents {
		if agent.Name == "" {
			return fmt.Errorf("serve.agents: agent name is required")
		}
		if seen[agent.Name] {
			return fmt.Errorf("serve.agents: duplicate agent %q", agent.Name)
		}
		seen[agent.Name] = true

		for _, skill := range agent.Skills {
			if skill.ID == "" {
				return fmt.Errorf("serve.agents.%s: skill id is required", agent.Name)
			}
			switch skill.Behavior {
			case BehaviorEcho, BehaviorStatic:
			default:
				return fmt.Errorf("serve.agents.%s.%s: unknown behavior %q", agent.Name, skill.ID, skill.Behavior)
			}
		}
	}
	return nil
}
