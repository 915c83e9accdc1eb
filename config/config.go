// Package config loads declarative endpoint, agent and group definitions
// from YAML and builds them into a ready-to-run registry. The file format
// separates what a deployment looks like from code: backends are endpoints,
// agents reference endpoints and named tools, groups reference agents.
//
// Values may reference environment variables with ${VAR}; expansion happens
// before parsing, so secrets stay out of the file itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/troupe-dev/troupe/core"
)

// Config is the root of a parsed configuration file.
type Config struct {
	Endpoints []Endpoint `yaml:"endpoints"`
	Agents    []Agent    `yaml:"agents"`
	Groups    []Group    `yaml:"groups"`
}

// Endpoint describes one model backend.
type Endpoint struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the credential.
	// Empty falls back to the provider SDK's own default variable.
	APIKeyEnv   string   `yaml:"api_key_env"`
	BaseURL     string   `yaml:"base_url"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// Parameter declares one named agent input.
type Parameter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// Agent describes one agent loop.
type Agent struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	Endpoint        string         `yaml:"endpoint"`
	TargetLanguage  string         `yaml:"target_language"`
	MaxSteps        int            `yaml:"max_steps"`
	InputParameters []Parameter    `yaml:"input_parameters"`
	Tools           []string       `yaml:"tools"`
	Context         map[string]any `yaml:"context"`
}

// Group describes one coordinated team of agents.
type Group struct {
	Name        string   `yaml:"name"`
	Mode        string   `yaml:"mode"`
	Members     []string `yaml:"members"`
	Manager     string   `yaml:"manager"`
	Entry       string   `yaml:"entry"`
	Optimizer   string   `yaml:"optimizer"`
	Workspace   string   `yaml:"workspace"`
	SharedTools []string `yaml:"shared_tools"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment references, decodes the YAML and validates
// names and cross-references. Tool names resolve later, at Build time,
// against the supplied tool set.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	endpoints := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint without a name")
		}
		if endpoints[ep.Name] {
			return fmt.Errorf("duplicate endpoint %q", ep.Name)
		}
		if ep.Provider == "" {
			return fmt.Errorf("endpoint %s: provider is required", ep.Name)
		}
		endpoints[ep.Name] = true
	}

	agents := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent without a name")
		}
		if agents[a.Name] {
			return fmt.Errorf("duplicate agent %q", a.Name)
		}
		agents[a.Name] = true

		if a.Endpoint == "" {
			return fmt.Errorf("agent %s: endpoint is required", a.Name)
		}
		if !endpoints[a.Endpoint] {
			return fmt.Errorf("agent %s: unknown endpoint %q", a.Name, a.Endpoint)
		}

		seenParams := make(map[string]bool, len(a.InputParameters))
		for _, p := range a.InputParameters {
			if p.Name == "" {
				return fmt.Errorf("agent %s: input parameter without a name", a.Name)
			}
			if seenParams[p.Name] {
				return fmt.Errorf("agent %s: duplicate input parameter %q", a.Name, p.Name)
			}
			seenParams[p.Name] = true
		}

		seenTools := make(map[string]bool, len(a.Tools))
		for _, name := range a.Tools {
			if seenTools[name] {
				return fmt.Errorf("agent %s: duplicate tool %q", a.Name, name)
			}
			seenTools[name] = true
		}
	}

	groups := make(map[string]bool, len(c.Groups))
	// An agent instance can only be wired into one group: wiring adds the
	// group's capabilities to the member itself.
	claimed := make(map[string]string)
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group without a name")
		}
		if groups[g.Name] {
			return fmt.Errorf("duplicate group %q", g.Name)
		}
		groups[g.Name] = true

		if len(g.Members) == 0 {
			return fmt.Errorf("group %s: at least one member is required", g.Name)
		}
		members := make(map[string]bool, len(g.Members))
		for _, name := range g.Members {
			if !agents[name] {
				return fmt.Errorf("group %s: unknown member %q", g.Name, name)
			}
			if owner, taken := claimed[name]; taken {
				return fmt.Errorf("group %s: agent %q already belongs to group %s", g.Name, name, owner)
			}
			claimed[name] = g.Name
			members[name] = true
		}

		if g.Manager != "" && !members[g.Manager] {
			return fmt.Errorf("group %s: manager %q is not a member", g.Name, g.Manager)
		}
		if g.Entry != "" && !members[g.Entry] {
			return fmt.Errorf("group %s: entry %q is not a member", g.Name, g.Entry)
		}
		if g.Optimizer != "" {
			if !agents[g.Optimizer] {
				return fmt.Errorf("group %s: unknown optimizer %q", g.Name, g.Optimizer)
			}
			if members[g.Optimizer] {
				return fmt.Errorf("group %s: optimizer %q must not be a member", g.Name, g.Optimizer)
			}
			if owner, taken := claimed[g.Optimizer]; taken {
				return fmt.Errorf("group %s: agent %q already belongs to group %s", g.Name, g.Optimizer, owner)
			}
			claimed[g.Optimizer] = g.Name
		}
	}
	return nil
}

// coreParameters converts declared parameters to the runtime schema.
func coreParameters(params []Parameter) []core.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]core.Parameter, len(params))
	for i, p := range params {
		out[i] = core.Parameter{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Required:    p.Required,
		}
	}
	return out
}
