// Package runner executes a single agent with status transitions and
// retry handling, dispatching to the registered implementation for the
// agent's type.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/weft-ai/weft/internal/registry"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// Config holds the retry knobs.
type Config struct {
	// MaxRetries is the maximum number of execution attempts.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base backoff delay between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Runner wraps agent execution with retries. The backoff grows linearly
// per attempt (delay × attempt number), not exponentially.
type Runner struct {
	registry *registry.Registry
	cfg      Config
}

// New creates a Runner over the given agent registry.
func New(reg *registry.Registry, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Runner{registry: reg, cfg: cfg}
}

// ExecuteWithRetry runs the agent until it succeeds or the attempt budget
// is exhausted. The terminal outcome is always expressed in the returned
// AgentResult; an unregistered agent type fails immediately without retry.
func (r *Runner) ExecuteWithRetry(ctx context.Context, agent *models.WorkflowAgent, agentCtx *task.AgentContext) *models.AgentResult {
	start := time.Now()

	impl, err := r.registry.Lookup(agent.Type)
	if err != nil {
		// Dispatch failure is a configuration error, not a transient one.
		agentCtx.SetStatus(task.StatusError, err.Error())
		agentCtx.RecordError(err.Error())
		return &models.AgentResult{
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: time.Since(start),
			Metadata:      map[string]any{"agent_id": agent.ID, "fatal": true},
		}
	}

	var lastErr string
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if canceled(agentCtx.Task()) {
			lastErr = "task canceled"
			agentCtx.SetStatus(task.StatusError, lastErr)
			break
		}

		agentCtx.SetStatus(task.StatusExecuting, fmt.Sprintf("attempt %d", attempt))
		result, err := impl.Execute(ctx, agent, agentCtx)

		if err == nil && result != nil && result.Success {
			agentCtx.SetStatus(task.StatusCompleted, "")
			agentCtx.RecordSuccess()
			result.ExecutionTime = time.Since(start)
			if result.Metadata == nil {
				result.Metadata = make(map[string]any)
			}
			result.Metadata["agent_id"] = agent.ID
			result.Metadata["attempts"] = attempt
			return result
		}

		lastErr = failureMessage(result, err)
		agentCtx.SetStatus(task.StatusError, lastErr)
		agentCtx.RecordError(lastErr)

		// A configuration error from the implementation is fatal.
		var cfgErr *registry.ConfigurationError
		if errors.As(err, &cfgErr) {
			break
		}

		if attempt < r.cfg.MaxRetries {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			log.Printf("[runner] agent %s attempt %d failed: %s (retrying in %s)", agent.ID, attempt, lastErr, delay)

			agentCtx.Task().Memory().Append(ctx, models.Message{
				Role: models.RoleSystem,
				Content: fmt.Sprintf("Agent %s attempt %d failed: %s. Retrying in %s.",
					agent.ID, attempt, lastErr, delay),
			})

			if !sleepOrCancel(ctx, agentCtx.Task(), delay) {
				lastErr = "task canceled during backoff"
				break
			}
		}
	}

	return &models.AgentResult{
		Success:       false,
		Error:         lastErr,
		ExecutionTime: time.Since(start),
		Metadata:      map[string]any{"agent_id": agent.ID, "attempts": r.cfg.MaxRetries},
	}
}

// failureMessage normalizes the failure description from a result/error pair.
func failureMessage(result *models.AgentResult, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case result == nil:
		return "agent implementation returned no result"
	case result.Error != "":
		return result.Error
	default:
		return "agent reported failure without an error message"
	}
}

// canceled reports whether the task's advisory cancellation fired.
func canceled(taskCtx *task.Context) bool {
	return taskCtx != nil && taskCtx.Canceled()
}

// sleepOrCancel waits for the backoff delay, returning false if the
// context or the task cancellation interrupts the wait.
func sleepOrCancel(ctx context.Context, taskCtx *task.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var taskDone <-chan struct{}
	if taskCtx != nil {
		taskDone = taskCtx.Done()
	}

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-taskDone:
		return false
	}
}
