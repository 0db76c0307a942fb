// Package registry provides the dispatch table from agent type keys to
// agent implementations. The table is constructed explicitly at startup
// and passed into the executor; there is no process-wide instance.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// Implementation executes one agent's task against its context. A non-nil
// error or an unsuccessful AgentResult both count as a transient failure
// and are retried by the runner.
type Implementation interface {
	Execute(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) (*models.AgentResult, error)
}

// Func adapts a plain function to the Implementation interface.
type Func func(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) (*models.AgentResult, error)

// Execute calls the wrapped function.
func (f Func) Execute(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) (*models.AgentResult, error) {
	return f(ctx, agent, agentCtx)
}

// ConfigurationError indicates a dispatch problem: an unregistered agent
// type or an invalid registration. Fatal for the agent, never retried.
type ConfigurationError struct {
	msg string
}

// Error returns the error message.
func (e *ConfigurationError) Error() string { return e.msg }

// NewConfigurationError creates a ConfigurationError with the given message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// Registry maps agent type keys to implementations.
type Registry struct {
	mu    sync.RWMutex
	impls map[string]Implementation
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{impls: make(map[string]Implementation)}
}

// Register binds a type key to an implementation. Empty keys, nil
// implementations, and duplicate keys are rejected at registration time.
func (r *Registry) Register(typeKey string, impl Implementation) error {
	if typeKey == "" {
		return NewConfigurationError("agent type key must not be empty")
	}
	if impl == nil {
		return NewConfigurationError("agent implementation for %s must not be nil", typeKey)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.impls[typeKey]; exists {
		return NewConfigurationError("agent type %s already registered", typeKey)
	}
	r.impls[typeKey] = impl
	return nil
}

// Lookup resolves a type key. A missing key is a ConfigurationError.
func (r *Registry) Lookup(typeKey string) (Implementation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[typeKey]
	if !ok {
		return nil, NewConfigurationError("no agent implementation registered for type %s", typeKey)
	}
	return impl, nil
}

// Types returns the registered type keys sorted alphabetically.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.impls))
	for k := range r.impls {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
