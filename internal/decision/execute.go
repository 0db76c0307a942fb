package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/tool"
	"github.com/weft-ai/weft/pkg/models"
)

// executeBuiltin runs the tool's native implementation directly.
func (e *Engine) executeBuiltin(ctx context.Context, spec *tool.Spec, params map[string]any) *models.ToolResult {
	data, err := spec.Builtin(ctx, params)
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("builtin execution of %s failed: %v", spec.ID, err),
		}
	}
	return &models.ToolResult{Success: true, Data: data}
}

// executeFunctionCalling delegates the invocation to the LLM provider with
// a tool-choice constraint and parses the response as the tool's output.
//
// Parse order: a structured tool-call response, then a best-effort JSON
// object extracted from free text, then the raw text wrapped as a text
// response.
func (e *Engine) executeFunctionCalling(ctx context.Context, spec *tool.Spec, params map[string]any) *models.ToolResult {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("marshal parameters for %s: %v", spec.ID, err),
		}
	}

	def := spec.Definition()
	prompt := fmt.Sprintf(
		"Execute the tool %q with the given arguments and produce its output.\n\n"+
			"Tool description: %s\nArguments: %s\n",
		def.Name, spec.Description, paramsJSON,
	)

	resp, err := e.provider.Call(ctx, llm.Request{
		Messages:   []models.Message{{Role: models.RoleUser, Content: prompt}},
		Tools:      []llm.ToolDefinition{def},
		ToolChoice: def.Name,
	})
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("function-calling execution of %s failed: %v", spec.ID, err),
		}
	}

	// Structured tool-call response.
	for _, call := range resp.ToolCalls {
		if call.Name != def.Name {
			continue
		}
		var out map[string]any
		if err := json.Unmarshal(call.Input, &out); err == nil {
			return &models.ToolResult{Success: true, Data: out}
		}
	}

	// Best-effort JSON object from free text.
	if obj, ok := extractJSONObject(resp.Content); ok {
		return &models.ToolResult{Success: true, Data: obj}
	}

	// Raw text wrapped as a text response.
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"text": resp.Content},
	}
}

// extractJSONObject scans free text for the first balanced JSON object
// that unmarshals cleanly. Brace counting ignores braces inside strings.
func extractJSONObject(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					var obj map[string]any
					if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err == nil {
						return obj, true
					}
					i = len(text) // candidate failed, move to next opening brace
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}
