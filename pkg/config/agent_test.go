package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const summarizerYAML = `name: summarizer
description: condenses long documents
system_prompt: You summarize documents into key points.
default:
  adapter: anthropic
  model: claude-sonnet-4-20250514
fallbacks:
  - adapter: openai
    model: gpt-5.2-instant
  - adapter: ollama
    model: llama3.2
max_tokens: 1024
attempt_timeout_ms: 60000
wait_budget_ms: 5000
`

func TestLoadAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summarizer.yaml")
	if err := os.WriteFile(path, []byte(summarizerYAML), 0600); err != nil {
		t.Fatalf("write agent: %v", err)
	}

	agent, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("load agent: %v", err)
	}
	if agent.Name != "summarizer" {
		t.Errorf("name = %q", agent.Name)
	}
	if agent.MaxTokens != 1024 {
		t.Errorf("max tokens = %d", agent.MaxTokens)
	}

	spec := agent.ChainSpec()
	if len(spec.Targets) != 3 {
		t.Fatalf("chain targets = %d, want 3", len(spec.Targets))
	}
	if spec.Targets[0].Adapter != "anthropic" {
		t.Errorf("first target = %s, want the default", spec.Targets[0])
	}
	if spec.Targets[2].Adapter != "ollama" {
		t.Errorf("last target = %s", spec.Targets[2])
	}
	if spec.AttemptTimeout != time.Minute {
		t.Errorf("attempt timeout = %v", spec.AttemptTimeout)
	}
	if spec.WaitBudget != 5*time.Second {
		t.Errorf("wait budget = %v", spec.WaitBudget)
	}
}

func TestLoadAgentNameFromFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewer.yaml")
	data := "system_prompt: Review the code.\ndefault:\n  adapter: anthropic\n  model: claude-opus-4-20250514\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write agent: %v", err)
	}

	agent, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("load agent: %v", err)
	}
	if agent.Name != "reviewer" {
		t.Errorf("name = %q, want filename stem", agent.Name)
	}
}

func TestLoadAgentRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("name: broken\nsystem_prompt: hi\n"), 0600); err != nil {
		t.Fatalf("write agent: %v", err)
	}
	if _, err := LoadAgent(path); err == nil {
		t.Fatal("expected error for agent with no default target")
	}
}

func TestLoadAgentsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "summarizer.yaml"), []byte(summarizerYAML), 0600); err != nil {
		t.Fatalf("write agent: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an agent"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	agents, err := LoadAgents(dir)
	if err != nil {
		t.Fatalf("load agents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(agents))
	}
	if _, ok := agents["summarizer"]; !ok {
		t.Error("summarizer agent missing")
	}
}

func TestLoadAgentsMissingDirectory(t *testing.T) {
	agents, err := LoadAgents(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("agents = %d, want 0", len(agents))
	}
}
