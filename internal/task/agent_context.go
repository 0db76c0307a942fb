package task

import (
	"sync"
	"time"
)

// ExecutionStatus is the fine-grained per-attempt state of an agent.
// WAITING and THINKING are implementation-reported sub-states; they are
// recorded in history but do not gate retry logic.
type ExecutionStatus string

const (
	// StatusIdle indicates no attempt is in flight.
	StatusIdle ExecutionStatus = "idle"
	// StatusExecuting indicates an attempt is running.
	StatusExecuting ExecutionStatus = "executing"
	// StatusWaiting indicates the agent is waiting on an external resource.
	StatusWaiting ExecutionStatus = "waiting"
	// StatusThinking indicates the agent is inside an LLM call.
	StatusThinking ExecutionStatus = "thinking"
	// StatusCompleted indicates the attempt finished successfully.
	StatusCompleted ExecutionStatus = "completed"
	// StatusError indicates the attempt failed.
	StatusError ExecutionStatus = "error"
)

// StatusTransition is one entry of an agent's append-only status history.
type StatusTransition struct {
	// Status is the state entered.
	Status ExecutionStatus `json:"status"`
	// Timestamp is when the transition occurred.
	Timestamp time.Time `json:"timestamp"`
	// Note carries optional context (error text, attempt number).
	Note string `json:"note,omitempty"`
}

// AgentContext is the per-agent execution context for one run. It refers
// to (does not own) its task context; it owns agent-local variables, the
// execution status, the consecutive-error counter, and the status history.
type AgentContext struct {
	agentID string
	task    *Context

	mu                sync.RWMutex
	variables         map[string]any
	status            ExecutionStatus
	consecutiveErrors int
	lastError         string
	history           []StatusTransition
}

// NewAgentContext creates an agent context bound to the given task context.
func NewAgentContext(agentID string, taskCtx *Context) *AgentContext {
	return &AgentContext{
		agentID:   agentID,
		task:      taskCtx,
		variables: make(map[string]any),
		status:    StatusIdle,
	}
}

// AgentID returns the agent's workflow id.
func (c *AgentContext) AgentID() string { return c.agentID }

// Task returns the parent task context.
func (c *AgentContext) Task() *Context { return c.task }

// Variable looks up a variable, falling back from agent scope to task scope.
func (c *AgentContext) Variable(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.variables[key]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	return c.task.Variable(key)
}

// SetVariable stores an agent-scoped variable.
func (c *AgentContext) SetVariable(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Variables returns a copy of the agent-scoped variable map.
func (c *AgentContext) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// SetStatus records a status transition with an optional note.
func (c *AgentContext) SetStatus(status ExecutionStatus, note string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.history = append(c.history, StatusTransition{
		Status:    status,
		Timestamp: time.Now(),
		Note:      note,
	})
}

// Status returns the current execution status.
func (c *AgentContext) Status() ExecutionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// History returns a copy of the status transition history.
func (c *AgentContext) History() []StatusTransition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StatusTransition, len(c.history))
	copy(out, c.history)
	return out
}

// RecordError increments the consecutive-error counter and stores the
// error message.
func (c *AgentContext) RecordError(errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors++
	c.lastError = errMsg
}

// RecordSuccess resets the consecutive-error counter.
func (c *AgentContext) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = 0
}

// ConsecutiveErrors returns the current consecutive-error count.
func (c *AgentContext) ConsecutiveErrors() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consecutiveErrors
}

// LastError returns the most recent error message, if any.
func (c *AgentContext) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// RestoreState reinstates status, error counters, variables, and history
// from a snapshot. Used by snapshot recovery.
func (c *AgentContext) RestoreState(status ExecutionStatus, consecutiveErrors int, lastError string, variables map[string]any, history []StatusTransition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.consecutiveErrors = consecutiveErrors
	c.lastError = lastError
	c.variables = make(map[string]any, len(variables))
	for k, v := range variables {
		c.variables[k] = v
	}
	c.history = append([]StatusTransition(nil), history...)
}
