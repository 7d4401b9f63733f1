package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/modelgate/pkg/chain"
)

// Agent is a named invocation persona: a system prompt plus the fallback
// chain it runs on. Agents live as YAML files under ~/.modelgate/agents.
type Agent struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description,omitempty"`
	SystemPrompt     string         `yaml:"system_prompt"`
	Default          chain.Target   `yaml:"default"`
	Fallbacks        []chain.Target `yaml:"fallbacks,omitempty"`
	MaxTokens        int64          `yaml:"max_tokens,omitempty"`
	AttemptTimeoutMs int            `yaml:"attempt_timeout_ms,omitempty"`
	WaitBudgetMs     int            `yaml:"wait_budget_ms,omitempty"`
}

// Check verifies the agent definition is usable.
func (a *Agent) Check() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("agent name is required")
	}
	if a.Default.Adapter == "" || a.Default.Model == "" {
		return fmt.Errorf("agent %s has no default target", a.Name)
	}
	return a.ChainSpec().Check()
}

// ChainSpec builds the fallback chain this agent runs on: the default
// target followed by the configured fallbacks.
func (a *Agent) ChainSpec() chain.Spec {
	spec := chain.Spec{
		Targets: append([]chain.Target{a.Default}, a.Fallbacks...),
	}
	if a.AttemptTimeoutMs > 0 {
		spec.AttemptTimeout = time.Duration(a.AttemptTimeoutMs) * time.Millisecond
	}
	if a.WaitBudgetMs > 0 {
		spec.WaitBudget = time.Duration(a.WaitBudgetMs) * time.Millisecond
	}
	return spec
}

// LoadAgent reads one agent definition from a YAML file.
func LoadAgent(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}

	var agent Agent
	if err := yaml.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("parse agent file %s: %w", path, err)
	}
	if agent.Name == "" {
		agent.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := agent.Check(); err != nil {
		return nil, err
	}
	return &agent, nil
}

// LoadAgents reads all agent definitions from a directory. A missing
// directory yields no agents, not an error.
func LoadAgents(dir string) (map[string]*Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Agent{}, nil
		}
		return nil, fmt.Errorf("read agents directory: %w", err)
	}

	agents := make(map[string]*Agent)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		agent, err := LoadAgent(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := agents[agent.Name]; exists {
			return nil, fmt.Errorf("duplicate agent name %q", agent.Name)
		}
		agents[agent.Name] = agent
	}
	return agents, nil
}
