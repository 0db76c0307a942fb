// Package agents provides the shipped agent implementations: an LLM agent
// that runs its task as a prompt and a tool agent that routes its task
// through the tool-decision engine.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// TypeLLM is the registry key for the LLM agent.
const TypeLLM = "llm"

// LLMAgent executes an agent's task as a prompt against the provider,
// reading and appending to the task's shared memory.
type LLMAgent struct {
	provider llm.Provider
	tracker  *llm.TokenTracker
	system   string
}

// NewLLMAgent creates an LLM agent. The tracker may be nil.
func NewLLMAgent(provider llm.Provider, tracker *llm.TokenTracker) *LLMAgent {
	return &LLMAgent{
		provider: provider,
		tracker:  tracker,
		system: "You are an agent executing one step of a larger workflow. " +
			"Complete the task you are given using the conversation so far as context. " +
			"Reply with the task's result only.",
	}
}

// SetSystemPrompt overrides the default system prompt.
func (a *LLMAgent) SetSystemPrompt(prompt string) {
	a.system = prompt
}

// Execute runs the agent's task through the provider. The task text and
// the model's reply are both appended to the task memory so later agents
// see them.
func (a *LLMAgent) Execute(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) (*models.AgentResult, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("llm agent %s: no provider configured", agent.ID)
	}
	if strings.TrimSpace(agent.Task) == "" {
		return nil, fmt.Errorf("llm agent %s: empty task", agent.ID)
	}

	mem := agentCtx.Task().Memory()
	prompt := expandVariables(agent.Task, agentCtx)
	mem.Append(ctx, models.Message{Role: models.RoleUser, Content: prompt})

	agentCtx.SetStatus(task.StatusThinking, "")
	resp, err := a.provider.Call(ctx, llm.Request{
		System:   a.system,
		Messages: mem.History(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm agent %s: %w", agent.ID, err)
	}
	if a.tracker != nil {
		a.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	mem.Append(ctx, models.Message{Role: models.RoleAssistant, Content: resp.Content})

	return &models.AgentResult{
		Success: true,
		Data:    resp.Content,
		Metadata: map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}

// expandVariables substitutes {{key}} references with agent-scope (falling
// back to task-scope) variables. Unknown references are left untouched.
func expandVariables(text string, agentCtx *task.AgentContext) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var out strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			out.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			out.WriteString(text)
			break
		}
		end += start

		out.WriteString(text[:start])
		key := strings.TrimSpace(text[start+2 : end])
		if v, ok := agentCtx.Variable(key); ok {
			out.WriteString(fmt.Sprintf("%v", v))
		} else {
			out.WriteString(text[start : end+2])
		}
		text = text[end+2:]
	}
	return out.String()
}
