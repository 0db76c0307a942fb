// Package task provides the per-run context hierarchy: one TaskContext per
// workflow run and one AgentContext per agent node.
package task

import (
	"sync"

	"github.com/weft-ai/weft/internal/memory"
)

// Context is the per-run task context. It owns the run's memory manager,
// task-scoped variables, and an advisory cancellation signal. One instance
// exists per workflow run, owned by the executor.
type Context struct {
	taskID string
	memory *memory.Manager

	mu        sync.RWMutex
	variables map[string]any

	cancelOnce sync.Once
	done       chan struct{}
}

// NewContext creates a task context with the given variables and memory.
func NewContext(taskID string, variables map[string]any, mem *memory.Manager) *Context {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}
	return &Context{
		taskID:    taskID,
		memory:    mem,
		variables: vars,
		done:      make(chan struct{}),
	}
}

// TaskID returns the run's task identifier.
func (c *Context) TaskID() string { return c.taskID }

// Memory returns the run's memory manager.
func (c *Context) Memory() *memory.Manager { return c.memory }

// Variable returns a task-scoped variable.
func (c *Context) Variable(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[key]
	return v, ok
}

// SetVariable stores a task-scoped variable.
func (c *Context) SetVariable(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Variables returns a copy of the task-scoped variable map.
func (c *Context) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// BoolVariable returns a task-scoped variable interpreted as a boolean.
// Missing or non-boolean values return the fallback.
func (c *Context) BoolVariable(key string, fallback bool) bool {
	v, ok := c.Variable(key)
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

// Cancel signals the run should stop. The signal is advisory: components
// check it at suspension points, nothing is forcibly interrupted.
func (c *Context) Cancel() {
	c.cancelOnce.Do(func() { close(c.done) })
}

// Canceled reports whether the run has been canceled.
func (c *Context) Canceled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the run is canceled.
func (c *Context) Done() <-chan struct{} { return c.done }
