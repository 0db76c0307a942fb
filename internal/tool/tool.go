// Package tool defines tool specifications and the registry the decision
// engine draws from. Tools are opaque capabilities identified by string id;
// the engine never knows what a tool actually does.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weft-ai/weft/internal/llm"
)

// Builtin is a tool's native implementation. The engine does not retry
// builtin calls; retries happen at whole-agent granularity.
type Builtin func(ctx context.Context, params map[string]any) (any, error)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	// Type is the JSON-schema type (string, integer, boolean, object, array).
	Type string `json:"type"`
	// Description tells the model what the parameter means.
	Description string `json:"description,omitempty"`
}

// Spec describes a registered tool: its schema, category, and optional
// native implementation.
type Spec struct {
	// ID uniquely identifies the tool.
	ID string
	// Name is the name exposed to the LLM for function calling.
	Name string
	// Description tells the model (and the decision engine) what the tool does.
	Description string
	// Category groups the tool (e.g. "terminal", "filesystem", "nlp").
	Category string
	// Parameters is the tool's input schema.
	Parameters map[string]ParamSpec
	// Required lists required parameter names.
	Required []string
	// RequiresRealtime marks tools that need live execution (terminals,
	// watchers); these bias toward the builtin path.
	RequiresRealtime bool
	// Metadata carries host-specific context; non-empty metadata biases
	// toward the function-calling path.
	Metadata map[string]any
	// Builtin is the native implementation, or nil if the tool is only
	// reachable through function calling.
	Builtin Builtin
}

// HasBuiltin reports whether a native implementation is registered.
func (s *Spec) HasBuiltin() bool { return s.Builtin != nil }

// Definition converts the spec into a provider tool definition.
func (s *Spec) Definition() llm.ToolDefinition {
	props := make(map[string]any, len(s.Parameters))
	for name, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return llm.ToolDefinition{
		Name:        name,
		Description: s.Description,
		InputSchema: props,
		Required:    s.Required,
	}
}

// Registry is a thread-safe collection of tool specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a spec to the registry. Registering an empty id or a
// duplicate id is an error.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil || spec.ID == "" {
		return fmt.Errorf("tool spec must have an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.ID]; exists {
		return fmt.Errorf("tool %s already registered", spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// Get returns the spec for a tool id, or nil if not registered.
func (r *Registry) Get(toolID string) *Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[toolID]
}

// List returns all registered specs sorted by id.
func (r *Registry) List() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
