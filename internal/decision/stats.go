package decision

import (
	"sync"
	"time"

	"github.com/weft-ai/weft/pkg/models"
)

// Stats holds the running execution statistics for one tool. Success rates
// and the average duration are incremental running averages, not stored
// samples.
type Stats struct {
	// TotalExecutions counts all invocations through the engine.
	TotalExecutions int `json:"total_executions"`
	// BuiltinExecutions counts invocations on the builtin path.
	BuiltinExecutions int `json:"builtin_executions"`
	// FunctionCallingExecutions counts invocations on the function-calling path.
	FunctionCallingExecutions int `json:"function_calling_executions"`
	// BuiltinSuccessRate is the running success rate of the builtin path.
	BuiltinSuccessRate float64 `json:"builtin_success_rate"`
	// FunctionCallingSuccessRate is the running success rate of the
	// function-calling path.
	FunctionCallingSuccessRate float64 `json:"function_calling_success_rate"`
	// AvgExecutionTime is the running average duration across both paths.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
}

// statsTable is the engine's per-tool statistics store. It is the one
// globally shared mutable structure in the engine; updates are serialized
// behind a single mutex so parallel stages can share an engine.
type statsTable struct {
	mu     sync.Mutex
	byTool map[string]*Stats
}

func newStatsTable() *statsTable {
	return &statsTable{byTool: make(map[string]*Stats)}
}

// record folds one execution into the tool's running statistics.
func (t *statsTable) record(toolID string, method models.ExecutionMethod, success bool, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.byTool[toolID]
	if s == nil {
		s = &Stats{}
		t.byTool[toolID] = s
	}

	s.TotalExecutions++
	s.AvgExecutionTime += (duration - s.AvgExecutionTime) / time.Duration(s.TotalExecutions)

	outcome := 0.0
	if success {
		outcome = 1.0
	}

	switch method {
	case models.MethodBuiltin:
		s.BuiltinExecutions++
		s.BuiltinSuccessRate += (outcome - s.BuiltinSuccessRate) / float64(s.BuiltinExecutions)
	case models.MethodFunctionCalling:
		s.FunctionCallingExecutions++
		s.FunctionCallingSuccessRate += (outcome - s.FunctionCallingSuccessRate) / float64(s.FunctionCallingExecutions)
	}
}

// get returns a copy of the tool's statistics.
func (t *statsTable) get(toolID string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.byTool[toolID]; s != nil {
		return *s
	}
	return Stats{}
}
