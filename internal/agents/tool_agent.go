package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weft-ai/weft/internal/decision"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// TypeTool is the registry key for the tool agent.
const TypeTool = "tool"

// ToolAgent executes an agent's pre-bound tool call through the decision
// engine, recording the execution in the task's memory history.
type ToolAgent struct {
	engine *decision.Engine
}

// NewToolAgent creates a tool agent over the given decision engine.
func NewToolAgent(engine *decision.Engine) *ToolAgent {
	return &ToolAgent{engine: engine}
}

// Execute runs the agent's tool call. Parameter values of the form
// {{key}} are resolved against agent and task variables before dispatch.
func (a *ToolAgent) Execute(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) (*models.AgentResult, error) {
	if agent.ToolCall == nil || agent.ToolCall.ToolID == "" {
		return nil, fmt.Errorf("tool agent %s: no tool call bound", agent.ID)
	}

	params := make(map[string]any, len(agent.ToolCall.Parameters))
	for k, v := range agent.ToolCall.Parameters {
		if s, ok := v.(string); ok {
			params[k] = expandVariables(s, agentCtx)
			continue
		}
		params[k] = v
	}

	agentCtx.SetStatus(task.StatusWaiting, agent.ToolCall.ToolID)
	result := a.engine.Execute(ctx, agent.ToolCall.ToolID, params, agentCtx.Task().Memory())

	if !result.Success {
		return &models.AgentResult{
			Success:       false,
			Error:         result.Error,
			ExecutionTime: result.ExecutionTime,
			Metadata:      result.Metadata,
		}, nil
	}

	data, err := renderData(result.Data)
	if err != nil {
		return nil, fmt.Errorf("tool agent %s: render result: %w", agent.ID, err)
	}

	return &models.AgentResult{
		Success:       true,
		Data:          data,
		ExecutionTime: result.ExecutionTime,
		Metadata:      result.Metadata,
	}, nil
}

// renderData flattens a tool result into the string result an agent
// reports. Strings pass through; everything else is JSON-encoded.
func renderData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
