// Package snapshot captures, restores, and garbage-collects point-in-time
// task state for recovery and audit.
package snapshot

import (
	"time"

	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// MemoryState is the captured memory of a task.
type MemoryState struct {
	// ChatHistory is the chat history at capture time.
	ChatHistory []models.Message `json:"chat_history"`
	// WorkingMemory is the working-memory map at capture time.
	WorkingMemory map[string]any `json:"working_memory,omitempty"`
}

// AgentSnapshot is the captured state of one agent context.
type AgentSnapshot struct {
	// AgentID is the workflow agent id.
	AgentID string `json:"agent_id"`
	// WorkflowStatus is the agent's lifecycle status in the workflow.
	WorkflowStatus models.AgentStatus `json:"workflow_status"`
	// ExecutionStatus is the fine-grained execution status.
	ExecutionStatus task.ExecutionStatus `json:"execution_status"`
	// Variables are the agent-scoped variables.
	Variables map[string]any `json:"variables,omitempty"`
	// ConsecutiveErrors is the consecutive-error count.
	ConsecutiveErrors int `json:"consecutive_errors"`
	// LastError is the most recent error message.
	LastError string `json:"last_error,omitempty"`
	// History is the status transition history.
	History []task.StatusTransition `json:"history,omitempty"`
}

// ExecutionState locates the run within its workflow at capture time.
type ExecutionState struct {
	// CurrentAgent is the agent executing at capture time, if any.
	CurrentAgent string `json:"current_agent,omitempty"`
	// CompletedAgents lists agents that finished successfully.
	CompletedAgents []string `json:"completed_agents,omitempty"`
	// FailedAgents lists agents that failed.
	FailedAgents []string `json:"failed_agents,omitempty"`
}

// Metadata summarizes a snapshot.
type Metadata struct {
	// Reason records why the snapshot was taken (manual, auto, completion,
	// error, compressed).
	Reason string `json:"reason"`
	// TotalTokens is the memory token estimate at capture time.
	TotalTokens int `json:"total_tokens"`
	// MessageCount is the chat history length at capture time.
	MessageCount int `json:"message_count"`
	// AgentCount is the number of captured agent contexts.
	AgentCount int `json:"agent_count"`
	// ErrorCount is the sum of consecutive-error counts across agents.
	ErrorCount int `json:"error_count"`
}

// TaskSnapshot is a serializable, immutable point-in-time capture of a
// task's context, memory, and agent states.
type TaskSnapshot struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`
	// TaskID is the captured run's task id.
	TaskID string `json:"task_id"`
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
	// Workflow is the workflow definition at capture time.
	Workflow *models.WorkflowDefinition `json:"workflow"`
	// Variables are the task-scoped variables.
	Variables map[string]any `json:"variables,omitempty"`
	// Memory is the captured memory state.
	Memory MemoryState `json:"memory"`
	// AgentSnapshots are the captured agent contexts.
	AgentSnapshots []AgentSnapshot `json:"agent_snapshots,omitempty"`
	// ExecutionState locates the run within the workflow.
	ExecutionState ExecutionState `json:"execution_state"`
	// Metadata summarizes the capture.
	Metadata Metadata `json:"metadata"`
}
