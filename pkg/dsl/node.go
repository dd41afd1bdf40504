package dsl

import (
	"fmt"

	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	spec    flow.NodeSpec
	edges   []flow.EdgeSpec
	builder *Builder
}

// Name sets the display name of the node.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.spec.Name = name
	return n
}

// Start marks the node as an entry point of the flow.
func (n *NodeBuilder) Start() *NodeBuilder {
	n.spec.Kind = flow.KindStart
	return n
}

// End marks the node as an exit of the flow.
func (n *NodeBuilder) End() *NodeBuilder {
	n.spec.Kind = flow.KindEnd
	n.edges = nil
	return n
}

// Do sets the action performed while the node is active.
func (n *NodeBuilder) Do(a domain.Action) *NodeBuilder {
	n.spec.Kind = flow.KindAction
	n.spec.Action = a
	return n
}

// Call makes the node a composed call into another flow's start node.
func (n *NodeBuilder) Call(flowName, start string) *NodeBuilder {
	n.spec.Kind = flow.KindCall
	n.spec.CallFlow = flowName
	n.spec.CallStart = start
	return n
}

// Checkpoint makes the node a snapshot point.
func (n *NodeBuilder) Checkpoint() *NodeBuilder {
	n.spec.Kind = flow.KindCheckpoint
	return n
}

// Go adds an unconditional edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.When(nil, target)
}

// When adds an edge to the target node guarded by c.
func (n *NodeBuilder) When(c domain.Condition, target string) *NodeBuilder {
	n.edges = append(n.edges, flow.EdgeSpec{
		ID:    n.edgeID(target),
		From:  n.spec.ID,
		To:    target,
		Guard: c,
	})
	return n
}

// Exit adds an edge leaving a composed call once the called flow reaches the given End node.
// It must follow Call.
func (n *NodeBuilder) Exit(end, target string) *NodeBuilder {
	return n.When(cond.NodeActive(n.spec.CallFlow, end), target)
}

// edgeID names edges "from->to", suffixing parallel edges with their rank.
func (n *NodeBuilder) edgeID(target string) string {
	id := fmt.Sprintf("%s->%s", n.spec.ID, target)
	rank := 0
	for _, e := range n.edges {
		if e.To == target {
			rank++
		}
	}
	if rank > 0 {
		id = fmt.Sprintf("%s#%d", id, rank)
	}
	return id
}

// Build returns the underlying node spec.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() flow.NodeSpec {
	return n.spec
}
