// Package llm defines the LLM provider capability the engine consumes,
// plus the shipped Anthropic-backed implementation.
package llm

import (
	"context"
	"encoding/json"

	"github.com/weft-ai/weft/pkg/models"
)

// ToolDefinition is a function-calling schema passed to the provider.
type ToolDefinition struct {
	// Name is the tool name exposed to the model.
	Name string `json:"name"`
	// Description tells the model what the tool does.
	Description string `json:"description,omitempty"`
	// InputSchema is the JSON-schema properties map for the tool's input.
	InputSchema map[string]any `json:"input_schema,omitempty"`
	// Required lists the required property names.
	Required []string `json:"required,omitempty"`
}

// Request is a single provider call.
type Request struct {
	// Model selects the model; empty uses the provider's default.
	Model string
	// System is the system prompt.
	System string
	// Messages is the conversation so far.
	Messages []models.Message
	// Temperature is the sampling temperature; zero means provider default.
	Temperature float64
	// MaxTokens bounds the response length; zero means provider default.
	MaxTokens int
	// Tools are the function-calling schemas available to the model.
	Tools []ToolDefinition
	// ToolChoice forces the model to call the named tool. Empty means auto.
	ToolChoice string
}

// ToolUse is a structured tool call in a provider response.
type ToolUse struct {
	// ID is the provider-assigned call id.
	ID string `json:"id"`
	// Name is the tool that was called.
	Name string `json:"name"`
	// Input is the raw JSON arguments.
	Input json.RawMessage `json:"input"`
}

// Usage reports token consumption for one call.
type Usage struct {
	// InputTokens is the prompt token count.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the completion token count.
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the provider's reply. A failed call is signaled via the
// returned error, never as a partial Response.
type Response struct {
	// Content is the concatenated text output.
	Content string `json:"content"`
	// ToolCalls are structured tool invocations, if any.
	ToolCalls []ToolUse `json:"tool_calls,omitempty"`
	// Usage is the token accounting for the call.
	Usage Usage `json:"usage"`
}

// Provider is the LLM capability consumed by the engine. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Call makes a single blocking request.
	Call(ctx context.Context, req Request) (*Response, error)
	// Stream makes a request and delivers incremental text chunks to fn
	// as they arrive, returning the final accumulated response.
	Stream(ctx context.Context, req Request, fn func(chunk string)) (*Response, error)
}
