// Package executor walks a compiled execution tree stage by stage, running
// agents through the retrying runner and emitting lifecycle events.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weft-ai/weft/internal/graph"
	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/memory"
	"github.com/weft-ai/weft/internal/runner"
	"github.com/weft-ai/weft/internal/snapshot"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// parallelVariable is the task variable that disables concurrent stage
// execution when set to false.
const parallelVariable = "agentParallel"

// StopReason explains why a run ended.
type StopReason string

const (
	// StopDone indicates the run completed every stage.
	StopDone StopReason = "done"
	// StopError indicates the run aborted on a failure.
	StopError StopReason = "error"
)

// Result is the outcome of one workflow run.
type Result struct {
	// TaskID is the run's task id.
	TaskID string
	// Success reports whether every stage completed.
	Success bool
	// StopReason explains why the run ended.
	StopReason StopReason
	// Output is the result of the final completed stage.
	Output string
	// Error holds the failure description when Success is false.
	Error string
	// Duration is the total run time.
	Duration time.Duration
}

// Executor owns one run at a time: it compiles the workflow, builds the
// context hierarchy, walks the tree with a barrier between stages, and
// guarantees teardown on every exit path.
type Executor struct {
	compiler  *graph.Compiler
	runner    *runner.Runner
	provider  llm.Provider
	memCfg    memory.Config
	snapshots *snapshot.Manager
	bus       *Bus

	debugLog func(format string, args ...any)
}

// New creates an executor. The provider may be nil when no agent
// implementation needs an LLM; the memory manager then skips summarization.
func New(compiler *graph.Compiler, run *runner.Runner, provider llm.Provider, memCfg memory.Config) *Executor {
	return &Executor{
		compiler: compiler,
		runner:   run,
		provider: provider,
		memCfg:   memCfg,
		bus:      NewBus(),
	}
}

// SetSnapshots enables snapshot capture for runs, including the periodic
// auto-snapshot timer.
func (e *Executor) SetSnapshots(m *snapshot.Manager) {
	e.snapshots = m
}

// Bus returns the executor's event bus for subscribing to run events.
func (e *Executor) Bus() *Bus {
	return e.bus
}

// SetDebugLog installs a debug logging function.
func (e *Executor) SetDebugLog(fn func(format string, args ...any)) {
	e.debugLog = fn
}

func (e *Executor) debugf(format string, args ...any) {
	if e.debugLog != nil {
		e.debugLog(format, args...)
	}
}

// runState tracks per-run progress shared between the walk and the
// snapshot timer.
type runState struct {
	mu        sync.Mutex
	current   string
	completed []string
	failed    []string
}

func (s *runState) setCurrent(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

func (s *runState) markCompleted(id string) {
	s.mu.Lock()
	s.completed = append(s.completed, id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
}

func (s *runState) markFailed(id string) {
	s.mu.Lock()
	s.failed = append(s.failed, id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
}

func (s *runState) executionState() snapshot.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.ExecutionState{
		CurrentAgent:    s.current,
		CompletedAgents: append([]string(nil), s.completed...),
		FailedAgents:    append([]string(nil), s.failed...),
	}
}

// Execute runs a workflow to completion or first failure. Context
// parameters overlay the workflow's own variables for this run.
func (e *Executor) Execute(ctx context.Context, workflow *models.WorkflowDefinition, contextParams map[string]any) *Result {
	start := time.Now()

	taskID := ""
	if workflow != nil {
		taskID = workflow.TaskID
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	if workflow == nil {
		return e.failEarly(taskID, start, "workflow is nil")
	}
	if err := workflow.Validate(); err != nil {
		return e.failEarly(taskID, start, err.Error())
	}

	tree, report, err := e.compiler.Compile(workflow.Agents)
	if err != nil {
		return e.failEarly(taskID, start, err.Error())
	}

	mem := memory.NewManager(e.memCfg, e.provider)
	mem.SetWorkflow(workflow)

	vars := make(map[string]any, len(workflow.Variables)+len(contextParams))
	for k, v := range workflow.Variables {
		vars[k] = v
	}
	for k, v := range contextParams {
		vars[k] = v
	}

	taskCtx := task.NewContext(taskID, vars, mem)
	agentCtxs := make(map[string]*task.AgentContext, len(workflow.Agents))
	ctxList := make([]*task.AgentContext, 0, len(workflow.Agents))
	for _, agent := range workflow.Agents {
		actx := task.NewAgentContext(agent.ID, taskCtx)
		agentCtxs[agent.ID] = actx
		ctxList = append(ctxList, actx)
	}

	state := &runState{}

	stopAuto := func() {}
	if e.snapshots != nil {
		stopAuto = e.snapshots.StartAuto(func() error {
			_, err := e.snapshots.Create(taskCtx, ctxList, workflow, state.executionState(), "auto")
			return err
		})
	}
	defer func() {
		stopAuto()
		taskCtx.Cancel()
	}()

	e.bus.Publish(Event{
		Type:    EventWorkflowStart,
		TaskID:  taskID,
		Message: fmt.Sprintf("workflow %s: %d agents in %d stages", workflow.Name, len(workflow.Agents), report.Stages),
	})
	log.Printf("[executor] task %s: %d agents, %d stages", taskID, len(workflow.Agents), report.Stages)

	var lastOutput string
	for node := tree; node != nil; node = node.Next {
		if reason := interrupted(ctx, taskCtx); reason != "" {
			return e.failRun(taskCtx, ctxList, workflow, state, start, reason)
		}

		output, err := e.runStage(ctx, taskCtx, node, agentCtxs, state)
		if err != nil {
			return e.failRun(taskCtx, ctxList, workflow, state, start, err.Error())
		}
		node.Result = output
		lastOutput = output
	}

	e.captureSnapshot(taskCtx, ctxList, workflow, state, "completion")
	e.bus.Publish(Event{
		Type:     EventWorkflowCompleted,
		TaskID:   taskID,
		Duration: time.Since(start),
	})

	return &Result{
		TaskID:     taskID,
		Success:    true,
		StopReason: StopDone,
		Output:     lastOutput,
		Duration:   time.Since(start),
	}
}

// runStage executes one tree node. A parallel node launches one goroutine
// per agent and joins them all before returning, so no later stage can
// observe a partially settled stage. Setting the agentParallel variable to
// false forces the members to run sequentially in list order.
func (e *Executor) runStage(ctx context.Context, taskCtx *task.Context, node *graph.Node, agentCtxs map[string]*task.AgentContext, state *runState) (string, error) {
	if node.Kind == graph.NodeNormal {
		return e.runAgent(ctx, node.Agent, agentCtxs[node.Agent.ID], state)
	}

	agents := node.Agents
	results := make([]string, len(agents))
	errs := make([]error, len(agents))

	if !taskCtx.BoolVariable(parallelVariable, true) {
		e.debugf("[executor] %s=false, running %d agents sequentially", parallelVariable, len(agents))
		for i, agent := range agents {
			if reason := interrupted(ctx, taskCtx); reason != "" {
				return "", fmt.Errorf("%s", reason)
			}
			results[i], errs[i] = e.runAgent(ctx, agent, agentCtxs[agent.ID], state)
			if errs[i] != nil {
				break
			}
		}
	} else {
		var wg sync.WaitGroup
		for i, agent := range agents {
			wg.Add(1)
			go func(i int, agent *models.WorkflowAgent) {
				defer wg.Done()
				results[i], errs[i] = e.runAgent(ctx, agent, agentCtxs[agent.ID], state)
			}(i, agent)
		}
		wg.Wait()
	}

	// First failure in list order decides the stage outcome.
	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	// Concatenate member results in list order regardless of which
	// goroutine finished first.
	var parts []string
	for _, r := range results {
		if r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// runAgent runs one agent through the retrying runner, updating workflow
// status and emitting lifecycle events.
func (e *Executor) runAgent(ctx context.Context, agent *models.WorkflowAgent, actx *task.AgentContext, state *runState) (string, error) {
	state.setCurrent(agent.ID)
	agent.Status = models.AgentStatusRunning
	e.bus.Publish(Event{
		Type:      EventAgentStart,
		TaskID:    actx.Task().TaskID(),
		AgentID:   agent.ID,
		AgentName: agent.Name,
	})

	res := e.runner.ExecuteWithRetry(ctx, agent, actx)

	if res.Success {
		agent.Status = models.AgentStatusDone
		state.markCompleted(agent.ID)
		e.bus.Publish(Event{
			Type:      EventAgentCompleted,
			TaskID:    actx.Task().TaskID(),
			AgentID:   agent.ID,
			AgentName: agent.Name,
			Duration:  res.ExecutionTime,
		})
		return res.Data, nil
	}

	agent.Status = models.AgentStatusError
	state.markFailed(agent.ID)
	e.bus.Publish(Event{
		Type:      EventAgentFailed,
		TaskID:    actx.Task().TaskID(),
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Error:     res.Error,
		Duration:  res.ExecutionTime,
	})
	return "", fmt.Errorf("agent %s failed: %s", agent.ID, res.Error)
}

// failEarly reports a run that never started walking the tree.
func (e *Executor) failEarly(taskID string, start time.Time, errMsg string) *Result {
	e.bus.Publish(Event{
		Type:   EventWorkflowFailed,
		TaskID: taskID,
		Error:  errMsg,
	})
	return &Result{
		TaskID:     taskID,
		Success:    false,
		StopReason: StopError,
		Error:      errMsg,
		Duration:   time.Since(start),
	}
}

// failRun reports a run that aborted mid-walk, capturing an error snapshot.
func (e *Executor) failRun(taskCtx *task.Context, ctxList []*task.AgentContext, workflow *models.WorkflowDefinition, state *runState, start time.Time, errMsg string) *Result {
	e.captureSnapshot(taskCtx, ctxList, workflow, state, "error")
	e.bus.Publish(Event{
		Type:     EventWorkflowFailed,
		TaskID:   taskCtx.TaskID(),
		Error:    errMsg,
		Duration: time.Since(start),
	})
	return &Result{
		TaskID:     taskCtx.TaskID(),
		Success:    false,
		StopReason: StopError,
		Error:      errMsg,
		Duration:   time.Since(start),
	}
}

// captureSnapshot takes a best-effort snapshot; failures are logged, never
// propagated to the run outcome.
func (e *Executor) captureSnapshot(taskCtx *task.Context, ctxList []*task.AgentContext, workflow *models.WorkflowDefinition, state *runState, reason string) {
	if e.snapshots == nil {
		return
	}
	if _, err := e.snapshots.Create(taskCtx, ctxList, workflow, state.executionState(), reason); err != nil {
		log.Printf("[executor] %s snapshot failed: %v", reason, err)
	}
}

// interrupted reports a non-empty reason when the run should stop.
func interrupted(ctx context.Context, taskCtx *task.Context) string {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("run aborted: %v", err)
	}
	if taskCtx.Canceled() {
		return "task canceled"
	}
	return ""
}
