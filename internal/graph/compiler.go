package graph

import (
	"fmt"

	"github.com/weft-ai/weft/pkg/models"
)

// StructuralError indicates a malformed workflow graph. It is fatal for the
// run and never retried.
type StructuralError struct {
	msg string
}

// Error returns the error message.
func (e *StructuralError) Error() string { return e.msg }

func structuralErrorf(format string, args ...any) *StructuralError {
	return &StructuralError{msg: fmt.Sprintf(format, args...)}
}

// CompileReport describes what the compiler did to produce the tree.
type CompileReport struct {
	// Stages is the number of stages in the compiled tree.
	Stages int
	// CyclicAgents lists agents whose dependencies were cleared to break
	// a cycle. They execute as entry nodes, possibly before data they
	// actually need; callers that care about ordering should inspect this.
	CyclicAgents []string
}

// Compiler turns a flat agent list into an execution tree.
type Compiler struct {
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		debugLog: func(format string, args ...any) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (c *Compiler) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		c.debugLog = fn
	}
}

// Compile builds the staged execution tree for the given agents.
//
// Cycle handling: agents on (or transitively behind) a dependency cycle
// get their DependsOn cleared and become entry nodes. The run always makes
// forward progress; the trade-off is recorded in the CompileReport.
func (c *Compiler) Compile(agents []*models.WorkflowAgent) (*Node, *CompileReport, error) {
	if len(agents) == 0 {
		return nil, nil, structuralErrorf("workflow has no agents")
	}

	c.debugLog("[graph.Compile] compiling %d agents", len(agents))

	report := &CompileReport{}

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.ID] = true
	}

	// Kahn's algorithm. Edges to unknown ids are ignored rather than
	// counted, so a dangling dependency does not wedge the graph.
	indegree := make(map[string]int, len(agents))
	dependents := make(map[string][]string)
	for _, a := range agents {
		indegree[a.ID] = 0
	}
	for _, a := range agents {
		for _, dep := range a.DependsOn {
			if !known[dep] {
				c.debugLog("[graph.Compile] agent %s depends on unknown id %s, ignoring edge", a.ID, dep)
				continue
			}
			indegree[a.ID]++
			dependents[dep] = append(dependents[dep], a.ID)
		}
	}

	var queue []string
	for _, a := range agents {
		if indegree[a.ID] == 0 {
			queue = append(queue, a.ID)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if processed < len(agents) {
		// Every agent with residual in-degree is on a cycle or depends
		// transitively on one. Clear its dependencies so it runs as an
		// entry node instead of deadlocking the run.
		for _, a := range agents {
			if indegree[a.ID] > 0 {
				c.debugLog("[graph.Compile] agent %s is cyclic, clearing %d dependencies", a.ID, len(a.DependsOn))
				a.DependsOn = nil
				report.CyclicAgents = append(report.CyclicAgents, a.ID)
			}
		}
	}

	root, err := c.buildStages(agents, known)
	if err != nil {
		return nil, nil, err
	}
	if root == nil {
		return nil, nil, structuralErrorf("compiled tree has no root")
	}

	report.Stages = root.Len()
	c.debugLog("[graph.Compile] built tree with %d stages, %d cyclic agents neutralized",
		report.Stages, len(report.CyclicAgents))
	return root, report, nil
}

// buildStages links the cycle-cleaned agents into a chain of stages.
// A stage holds every not-yet-placed agent whose entire dependency set is
// already placed; within a stage, original list order is preserved.
func (c *Compiler) buildStages(agents []*models.WorkflowAgent, known map[string]bool) (*Node, error) {
	placed := make(map[string]bool, len(agents))

	satisfied := func(a *models.WorkflowAgent) bool {
		for _, dep := range a.DependsOn {
			if known[dep] && !placed[dep] {
				return false
			}
		}
		return true
	}

	var root, tail *Node
	remaining := len(agents)

	for remaining > 0 {
		var stage []*models.WorkflowAgent
		for _, a := range agents {
			if !placed[a.ID] && satisfied(a) {
				stage = append(stage, a)
			}
		}

		if len(stage) == 0 {
			if root == nil {
				// Cannot happen after cycle breaking, checked defensively.
				return nil, structuralErrorf("workflow has no entry agent")
			}
			return nil, structuralErrorf("%d agents unreachable after stage %d", remaining, tail.Len())
		}

		node := &Node{}
		if len(stage) == 1 {
			node.Kind = NodeNormal
			node.Agent = stage[0]
		} else {
			node.Kind = NodeParallel
			node.Agents = stage
		}

		if root == nil {
			root = node
		} else {
			tail.Next = node
		}
		tail = node

		for _, a := range stage {
			placed[a.ID] = true
		}
		remaining -= len(stage)
		c.debugLog("[graph.buildStages] stage %d: %d agents (%s)", root.Len()-1, len(stage), node.Kind)
	}

	return root, nil
}
