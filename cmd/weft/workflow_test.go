package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/weft-ai/weft/pkg/models"
)

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing workflow: %v", err)
	}
	return path
}

func TestLoadWorkflow(t *testing.T) {
	path := writeWorkflow(t, `
task_id: demo
name: Demo workflow
variables:
  topic: databases
agents:
  - id: research
    name: Researcher
    task: "Research {{topic}}"
  - id: fetch
    name: Fetcher
    tool_call:
      tool_id: read_file
      parameters:
        path: notes.md
  - id: summarize
    name: Summarizer
    task: "Summarize the findings"
    type: llm
    depends_on: [research, fetch]
`)

	wf, err := loadWorkflow(path)
	if err != nil {
		t.Fatalf("loadWorkflow: %v", err)
	}

	if wf.TaskID != "demo" || wf.Name != "Demo workflow" {
		t.Errorf("identity = %q / %q", wf.TaskID, wf.Name)
	}
	if wf.Variables["topic"] != "databases" {
		t.Errorf("variables = %v", wf.Variables)
	}
	if len(wf.Agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(wf.Agents))
	}

	research := wf.Agents[0]
	if research.Type != "llm" {
		t.Errorf("agent without type should default to llm, got %s", research.Type)
	}
	if research.Status != models.AgentStatusInit {
		t.Errorf("initial status = %s", research.Status)
	}

	fetch := wf.Agents[1]
	if fetch.Type != "tool" {
		t.Errorf("agent with a tool_call should default to tool, got %s", fetch.Type)
	}
	if fetch.ToolCall == nil || fetch.ToolCall.ToolID != "read_file" {
		t.Fatalf("tool call = %+v", fetch.ToolCall)
	}
	if fetch.ToolCall.Parameters["path"] != "notes.md" {
		t.Errorf("tool parameters = %v", fetch.ToolCall.Parameters)
	}

	summarize := wf.Agents[2]
	if len(summarize.DependsOn) != 2 {
		t.Errorf("depends_on = %v", summarize.DependsOn)
	}
}

func TestLoadWorkflowMissingFile(t *testing.T) {
	if _, err := loadWorkflow(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWorkflowInvalidYAML(t *testing.T) {
	path := writeWorkflow(t, "agents: [unclosed\n")
	if _, err := loadWorkflow(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadWorkflowRejectsInvalidDefinition(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no agents", "task_id: empty\nname: Empty\n"},
		{"duplicate ids", `
name: dupes
agents:
  - id: a
    name: first
    task: one
  - id: a
    name: second
    task: two
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWorkflow(t, tt.content)
			if _, err := loadWorkflow(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{"empty", nil, map[string]any{}, false},
		{"string value", []string{"topic=databases"}, map[string]any{"topic": "databases"}, false},
		{"bool values", []string{"agentParallel=false", "verbose=true"}, map[string]any{"agentParallel": false, "verbose": true}, false},
		{"value with equals", []string{"query=a=b"}, map[string]any{"query": "a=b"}, false},
		{"missing separator", []string{"topic"}, nil, true},
		{"empty key", []string{"=value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParams(%v) error = %v, wantErr %v", tt.pairs, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseParams(%v) = %v, want %v", tt.pairs, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("param %s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
