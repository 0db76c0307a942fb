// Package models defines the shared data types for workflows, agents, and
// execution results.
package models

import "fmt"

// AgentStatus represents the lifecycle state of a workflow agent.
type AgentStatus string

const (
	// AgentStatusInit indicates the agent has not started.
	AgentStatusInit AgentStatus = "init"
	// AgentStatusRunning indicates the agent is executing.
	AgentStatusRunning AgentStatus = "running"
	// AgentStatusDone indicates the agent completed successfully.
	AgentStatusDone AgentStatus = "done"
	// AgentStatusError indicates the agent failed.
	AgentStatusError AgentStatus = "error"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusInit, AgentStatusRunning, AgentStatusDone, AgentStatusError:
		return true
	default:
		return false
	}
}

// ToolCall is a pre-bound tool invocation attached to an agent by the planner.
type ToolCall struct {
	// ToolID identifies the tool to invoke.
	ToolID string `json:"tool_id"`
	// Parameters are the arguments for the invocation.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// WorkflowAgent is one node of a workflow's dependency graph.
// The executor mutates Status in place as the run progresses; agents are
// never removed during a run.
type WorkflowAgent struct {
	// ID is the unique identifier within the workflow.
	ID string `json:"id"`
	// Name is the human-readable agent name.
	Name string `json:"name"`
	// Task is the free-text instruction for this agent.
	Task string `json:"task"`
	// Type is the dispatch key used to resolve the agent implementation.
	Type string `json:"type"`
	// DependsOn lists agent IDs that must complete before this agent runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Parallel hints that this agent may run concurrently with its stage peers.
	Parallel bool `json:"parallel,omitempty"`
	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`
	// ToolCall is an optional pre-bound tool invocation.
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// WorkflowDefinition is a task's full agent graph plus shared variables.
// It is produced by a planner and consumed read-only by the compiler;
// only the embedded agents' Status fields mutate during execution.
type WorkflowDefinition struct {
	// TaskID is the unique identifier for the task run.
	TaskID string `json:"task_id"`
	// Name is the human-readable workflow name.
	Name string `json:"name"`
	// Agents is the flat list of graph nodes. Must be non-empty.
	Agents []*WorkflowAgent `json:"agents"`
	// Variables are task-scoped variables shared by all agents.
	Variables map[string]any `json:"variables,omitempty"`
}

// Validate checks the structural invariants: a non-empty agent list and
// unique agent IDs.
func (w *WorkflowDefinition) Validate() error {
	if len(w.Agents) == 0 {
		return fmt.Errorf("workflow %s has no agents", w.TaskID)
	}
	seen := make(map[string]bool, len(w.Agents))
	for _, a := range w.Agents {
		if a.ID == "" {
			return fmt.Errorf("workflow %s has an agent with an empty id", w.TaskID)
		}
		if seen[a.ID] {
			return fmt.Errorf("workflow %s has duplicate agent id %s", w.TaskID, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Agent returns the agent with the given ID, or nil if not found.
func (w *WorkflowDefinition) Agent(id string) *WorkflowAgent {
	for _, a := range w.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}
