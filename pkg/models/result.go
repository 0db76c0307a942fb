package models

import "time"

// ExecutionMethod identifies which path executed a tool invocation.
type ExecutionMethod string

const (
	// MethodBuiltin ran the tool's native implementation directly.
	MethodBuiltin ExecutionMethod = "builtin"
	// MethodFunctionCalling delegated the invocation to the LLM provider.
	MethodFunctionCalling ExecutionMethod = "function_calling"
)

// AgentResult is the terminal outcome of one agent's execution, after retries.
type AgentResult struct {
	// Success indicates whether the agent completed its task.
	Success bool `json:"success"`
	// Data is the agent's textual result.
	Data string `json:"data,omitempty"`
	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
	// ExecutionTime is the total wall-clock time across all attempts.
	ExecutionTime time.Duration `json:"execution_time"`
	// Metadata carries implementation-specific details (attempt count, etc.).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolResult is the outcome of one tool invocation through the decision engine.
type ToolResult struct {
	// Success indicates whether the invocation succeeded.
	Success bool `json:"success"`
	// Data is the tool's output.
	Data any `json:"data,omitempty"`
	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
	// ExecutionMethod is the path that ran the invocation.
	ExecutionMethod ExecutionMethod `json:"execution_method"`
	// ExecutionTime is the wall-clock duration of the invocation.
	ExecutionTime time.Duration `json:"execution_time"`
	// Metadata carries decision details (chosen strategy, confidence, scores).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecutionRecord is one entry of the memory manager's tool-call audit trail.
// This is distinct from an agent context's status history.
type ExecutionRecord struct {
	// ToolID identifies the tool that was invoked.
	ToolID string `json:"tool_id"`
	// Parameters are the arguments the tool was invoked with.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Result is the tool's output.
	Result any `json:"result,omitempty"`
	// Timestamp is when the invocation completed.
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`
	// Success indicates whether the invocation succeeded.
	Success bool `json:"success"`
}
