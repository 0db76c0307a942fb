// Package graph compiles a workflow's flat agent list into a staged
// execution tree, detecting and neutralizing dependency cycles.
package graph

import "github.com/weft-ai/weft/pkg/models"

// NodeKind discriminates the two execution tree node variants.
type NodeKind int

const (
	// NodeNormal is a single-agent stage.
	NodeNormal NodeKind = iota
	// NodeParallel is a concurrent multi-agent stage.
	NodeParallel
)

// String returns a human-readable representation of the node kind.
func (k NodeKind) String() string {
	switch k {
	case NodeNormal:
		return "normal"
	case NodeParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Node is one stage of the compiled execution tree. Topology is immutable
// after compilation; only Result mutates during execution.
type Node struct {
	// Kind selects which of Agent/Agents is populated.
	Kind NodeKind
	// Agent is the member of a NodeNormal stage.
	Agent *models.WorkflowAgent
	// Agents are the members of a NodeParallel stage, in original list order.
	Agents []*models.WorkflowAgent
	// Next is the following stage, or nil for the last stage.
	Next *Node
	// Result caches the stage's textual result once it has executed.
	Result string
}

// Members returns the stage's agents regardless of kind.
func (n *Node) Members() []*models.WorkflowAgent {
	if n.Kind == NodeNormal {
		return []*models.WorkflowAgent{n.Agent}
	}
	return n.Agents
}

// Len returns the number of stages from this node to the end of the chain.
func (n *Node) Len() int {
	count := 0
	for cur := n; cur != nil; cur = cur.Next {
		count++
	}
	return count
}

// StageOf returns the zero-based stage index of the agent with the given ID,
// or -1 if the agent is not in the chain.
func (n *Node) StageOf(agentID string) int {
	idx := 0
	for cur := n; cur != nil; cur = cur.Next {
		for _, a := range cur.Members() {
			if a.ID == agentID {
				return idx
			}
		}
		idx++
	}
	return -1
}
