package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/weft-ai/weft/pkg/models"
)

// yamlWorkflow is the on-disk workflow format.
type yamlWorkflow struct {
	TaskID    string         `yaml:"task_id"`
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables"`
	Agents    []yamlAgent    `yaml:"agents"`
}

type yamlAgent struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Task      string        `yaml:"task"`
	Type      string        `yaml:"type"`
	DependsOn []string      `yaml:"depends_on"`
	Parallel  bool          `yaml:"parallel"`
	ToolCall  *yamlToolCall `yaml:"tool_call"`
}

type yamlToolCall struct {
	ToolID     string         `yaml:"tool_id"`
	Parameters map[string]any `yaml:"parameters"`
}

// loadWorkflow reads and validates a workflow definition from a YAML file.
func loadWorkflow(path string) (*models.WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var yw yamlWorkflow
	if err := yaml.Unmarshal(raw, &yw); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	wf := &models.WorkflowDefinition{
		TaskID:    yw.TaskID,
		Name:      yw.Name,
		Variables: yw.Variables,
	}
	for _, ya := range yw.Agents {
		agent := &models.WorkflowAgent{
			ID:        ya.ID,
			Name:      ya.Name,
			Task:      ya.Task,
			Type:      ya.Type,
			DependsOn: ya.DependsOn,
			Parallel:  ya.Parallel,
			Status:    models.AgentStatusInit,
		}
		if ya.Type == "" {
			agent.Type = "llm"
		}
		if ya.ToolCall != nil {
			agent.ToolCall = &models.ToolCall{
				ToolID:     ya.ToolCall.ToolID,
				Parameters: ya.ToolCall.Parameters,
			}
			if ya.Type == "" {
				agent.Type = "tool"
			}
		}
		wf.Agents = append(wf.Agents, agent)
	}

	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	return wf, nil
}
