package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weft-ai/weft/internal/graph"
	"github.com/weft-ai/weft/internal/memory"
	"github.com/weft-ai/weft/internal/registry"
	"github.com/weft-ai/weft/internal/runner"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// scriptedImpl runs a per-agent function, defaulting to echoing the agent id.
type scriptedImpl struct {
	mu    sync.Mutex
	runs  []string
	hooks map[string]func() (*models.AgentResult, error)
}

func (s *scriptedImpl) Execute(_ context.Context, agent *models.WorkflowAgent, _ *task.AgentContext) (*models.AgentResult, error) {
	s.mu.Lock()
	s.runs = append(s.runs, agent.ID)
	s.mu.Unlock()

	if hook, ok := s.hooks[agent.ID]; ok {
		return hook()
	}
	return &models.AgentResult{Success: true, Data: "result of " + agent.ID}, nil
}

func (s *scriptedImpl) ranAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

func newTestExecutor(t *testing.T, impl registry.Implementation) *Executor {
	t.Helper()
	reg := registry.New()
	if err := reg.Register("test", impl); err != nil {
		t.Fatalf("Register: %v", err)
	}
	run := runner.New(reg, runner.Config{MaxRetries: 1, RetryDelay: time.Millisecond})
	return New(graph.NewCompiler(), run, nil, memory.Config{})
}

func testWorkflow(agents ...*models.WorkflowAgent) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		TaskID: "task-1",
		Name:   "test workflow",
		Agents: agents,
	}
}

func wfAgent(id string, deps ...string) *models.WorkflowAgent {
	return &models.WorkflowAgent{ID: id, Name: id, Type: "test", DependsOn: deps, Status: models.AgentStatusInit}
}

func TestExecuteTwoAgentChain(t *testing.T) {
	impl := &scriptedImpl{}
	exec := newTestExecutor(t, impl)

	var events []Event
	exec.Bus().Subscribe(func(ev Event) { events = append(events, ev) })

	first := wfAgent("first")
	second := wfAgent("second", "first")
	result := exec.Execute(context.Background(), testWorkflow(first, second), nil)

	if !result.Success || result.StopReason != StopDone {
		t.Fatalf("result = %+v", result)
	}
	if result.Output != "result of second" {
		t.Errorf("Output = %q, want the final stage's result", result.Output)
	}
	if got := impl.ranAgents(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("execution order = %v", got)
	}
	if first.Status != models.AgentStatusDone || second.Status != models.AgentStatusDone {
		t.Errorf("agent statuses = %s, %s", first.Status, second.Status)
	}

	wantTypes := []EventType{
		EventWorkflowStart,
		EventAgentStart, EventAgentCompleted,
		EventAgentStart, EventAgentCompleted,
		EventWorkflowCompleted,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("event count = %d (%v), want %d", len(events), events, len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d = %s, want %s", i, events[i].Type, want)
		}
	}
	if events[1].AgentID != "first" || events[3].AgentID != "second" {
		t.Errorf("agent events out of order: %v", events)
	}
}

func TestEmptyFinalStageOutput(t *testing.T) {
	// The run reports the final stage's result even when it is empty; an
	// earlier stage's output must not leak through.
	impl := &scriptedImpl{hooks: map[string]func() (*models.AgentResult, error){
		"last": func() (*models.AgentResult, error) {
			return &models.AgentResult{Success: true, Data: ""}, nil
		},
	}}
	exec := newTestExecutor(t, impl)

	result := exec.Execute(context.Background(), testWorkflow(wfAgent("first"), wfAgent("last", "first")), nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Output != "" {
		t.Errorf("Output = %q, want the final stage's empty result", result.Output)
	}
}

func TestParallelStageOrderPreserved(t *testing.T) {
	// Stall the first-listed agent so it finishes last; its result must
	// still lead the concatenated stage output.
	impl := &scriptedImpl{hooks: map[string]func() (*models.AgentResult, error){
		"a": func() (*models.AgentResult, error) {
			time.Sleep(30 * time.Millisecond)
			return &models.AgentResult{Success: true, Data: "slow a"}, nil
		},
		"b": func() (*models.AgentResult, error) {
			return &models.AgentResult{Success: true, Data: "fast b"}, nil
		},
	}}
	exec := newTestExecutor(t, impl)

	result := exec.Execute(context.Background(), testWorkflow(wfAgent("a"), wfAgent("b")), nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Output != "slow a\n\nfast b" {
		t.Errorf("Output = %q, want list-order concatenation", result.Output)
	}
}

func TestParallelDisabledRunsSequentially(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	track := func(id string) func() (*models.AgentResult, error) {
		return func() (*models.AgentResult, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return &models.AgentResult{Success: true, Data: id}, nil
		}
	}
	impl := &scriptedImpl{hooks: map[string]func() (*models.AgentResult, error){
		"a": track("a"), "b": track("b"), "c": track("c"),
	}}
	exec := newTestExecutor(t, impl)

	result := exec.Execute(context.Background(),
		testWorkflow(wfAgent("a"), wfAgent("b"), wfAgent("c")),
		map[string]any{"agentParallel": false})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if maxInFlight != 1 {
		t.Errorf("max in-flight agents = %d, want 1 when agentParallel is false", maxInFlight)
	}
	if got := impl.ranAgents(); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("sequential order = %v", got)
	}
}

func TestStageBarrier(t *testing.T) {
	var mu sync.Mutex
	var done []string
	mark := func(id string, delay time.Duration) func() (*models.AgentResult, error) {
		return func() (*models.AgentResult, error) {
			time.Sleep(delay)
			mu.Lock()
			done = append(done, id)
			mu.Unlock()
			return &models.AgentResult{Success: true, Data: id}, nil
		}
	}
	impl := &scriptedImpl{hooks: map[string]func() (*models.AgentResult, error){
		"slow": mark("slow", 30*time.Millisecond),
		"fast": mark("fast", 0),
		"next": mark("next", 0),
	}}
	exec := newTestExecutor(t, impl)

	result := exec.Execute(context.Background(),
		testWorkflow(wfAgent("slow"), wfAgent("fast"), wfAgent("next", "fast")), nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	// next depends only on fast, but the stage barrier still holds it
	// until slow settles.
	if done[len(done)-1] != "next" {
		t.Errorf("completion order = %v, want next last", done)
	}
}

func TestFailureAbortsRun(t *testing.T) {
	impl := &scriptedImpl{hooks: map[string]func() (*models.AgentResult, error){
		"first": func() (*models.AgentResult, error) {
			return nil, errors.New("agent exploded")
		},
	}}
	exec := newTestExecutor(t, impl)

	var events []Event
	exec.Bus().Subscribe(func(ev Event) { events = append(events, ev) })

	first := wfAgent("first")
	second := wfAgent("second", "first")
	result := exec.Execute(context.Background(), testWorkflow(first, second), nil)

	if result.Success || result.StopReason != StopError {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Error, "agent exploded") {
		t.Errorf("Error = %q", result.Error)
	}
	if got := impl.ranAgents(); len(got) != 1 {
		t.Errorf("ran agents = %v, want the failed agent only", got)
	}
	if first.Status != models.AgentStatusError {
		t.Errorf("first status = %s, want %s", first.Status, models.AgentStatusError)
	}
	if second.Status != models.AgentStatusInit {
		t.Errorf("second status = %s, want untouched", second.Status)
	}

	last := events[len(events)-1]
	if last.Type != EventWorkflowFailed {
		t.Errorf("final event = %s, want %s", last.Type, EventWorkflowFailed)
	}
}

func TestExecuteNilAndInvalidWorkflow(t *testing.T) {
	exec := newTestExecutor(t, &scriptedImpl{})

	if result := exec.Execute(context.Background(), nil, nil); result.Success {
		t.Error("nil workflow should fail")
	}

	invalid := testWorkflow() // no agents
	if result := exec.Execute(context.Background(), invalid, nil); result.Success {
		t.Error("empty workflow should fail")
	}
}

func TestContextParamsOverrideWorkflowVariables(t *testing.T) {
	var seen any
	probe := registry.Func(func(_ context.Context, _ *models.WorkflowAgent, actx *task.AgentContext) (*models.AgentResult, error) {
		seen, _ = actx.Variable("mode")
		return &models.AgentResult{Success: true, Data: "ok"}, nil
	})

	reg := registry.New()
	if err := reg.Register("test", probe); err != nil {
		t.Fatalf("Register: %v", err)
	}
	exec := New(graph.NewCompiler(), runner.New(reg, runner.Config{MaxRetries: 1, RetryDelay: time.Millisecond}), nil, memory.Config{})

	wf := testWorkflow(wfAgent("a"))
	wf.Variables = map[string]any{"mode": "workflow"}
	result := exec.Execute(context.Background(), wf, map[string]any{"mode": "override"})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if seen != "override" {
		t.Errorf("mode variable = %v, want the context-param override", seen)
	}
}

func TestCanceledContextStopsRun(t *testing.T) {
	impl := &scriptedImpl{}
	exec := newTestExecutor(t, impl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.Execute(ctx, testWorkflow(wfAgent("a")), nil)
	if result.Success {
		t.Fatal("canceled run should fail")
	}
	if len(impl.ranAgents()) != 0 {
		t.Errorf("ran agents = %v, want none", impl.ranAgents())
	}
}

func TestBusSubscriberPanicIsolated(t *testing.T) {
	bus := NewBus()

	var received []EventType
	bus.Subscribe(func(Event) { panic("bad subscriber") })
	bus.Subscribe(func(ev Event) { received = append(received, ev.Type) })

	bus.Publish(Event{Type: EventWorkflowStart})
	bus.Publish(Event{Type: EventWorkflowCompleted})

	if len(received) != 2 {
		t.Errorf("healthy subscriber received %d events, want 2", len(received))
	}
}

func TestBusOrderedDelivery(t *testing.T) {
	bus := NewBus()
	var got []EventType
	bus.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	sequence := []EventType{EventWorkflowStart, EventAgentStart, EventAgentCompleted, EventWorkflowCompleted}
	for _, typ := range sequence {
		bus.Publish(Event{Type: typ})
	}

	for i, want := range sequence {
		if got[i] != want {
			t.Fatalf("delivery order = %v, want %v", got, sequence)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })

	bus.Publish(Event{Type: EventWorkflowStart})
	unsubscribe()
	bus.Publish(Event{Type: EventWorkflowCompleted})

	if count != 1 {
		t.Errorf("subscriber saw %d events, want 1", count)
	}
}

func TestBusPublishFromHandler(t *testing.T) {
	bus := NewBus()

	var fromNested []EventType
	fired := false
	bus.Subscribe(func(ev Event) {
		if fired {
			return
		}
		fired = true
		bus.Subscribe(func(ev Event) { fromNested = append(fromNested, ev.Type) })
		bus.Publish(Event{Type: EventAgentStart})
	})

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: EventWorkflowStart})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish from inside a handler deadlocked")
	}

	if len(fromNested) != 1 || fromNested[0] != EventAgentStart {
		t.Errorf("nested subscriber saw %v, want the nested publish only", fromNested)
	}
}

func TestBusUnsubscribeFromHandler(t *testing.T) {
	bus := NewBus()
	count := 0
	var unsubscribe func()
	unsubscribe = bus.Subscribe(func(Event) {
		count++
		unsubscribe()
	})

	bus.Publish(Event{Type: EventWorkflowStart})
	bus.Publish(Event{Type: EventWorkflowCompleted})

	if count != 1 {
		t.Errorf("subscriber saw %d events, want 1", count)
	}
}

func TestBusChanSubscriberDropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.SubscribeChan(1)
	defer stop()

	bus.Publish(Event{Type: EventWorkflowStart})
	bus.Publish(Event{Type: EventAgentStart}) // buffer full, dropped

	if bus.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", bus.DroppedCount())
	}
	ev := <-ch
	if ev.Type != EventWorkflowStart {
		t.Errorf("delivered event = %s", ev.Type)
	}
}
