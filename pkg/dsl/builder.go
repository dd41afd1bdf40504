package dsl

import (
	"fmt"

	"github.com/aretw0/flux/pkg/flow"
)

// Builder manages the graph construction of one flow.
type Builder struct {
	name  string
	opts  []flow.Option
	order []string
	nodes map[string]*NodeBuilder
}

// New creates a new flow builder.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Autostart marks the flow to be entered when a session initializes.
func (b *Builder) Autostart() *Builder {
	b.opts = append(b.opts, flow.WithAutostart(true))
	return b
}

// Meta attaches a metadata entry to the flow.
func (b *Builder) Meta(key, value string) *Builder {
	b.opts = append(b.opts, flow.WithMetadata(map[string]string{key: value}))
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
// Nodes without an explicit kind are Action nodes.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		spec:    flow.NodeSpec{ID: id, Kind: flow.KindAction},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build compiles the graph into an immutable flow.
// Edges keep the order in which they were declared, node by node.
func (b *Builder) Build() (*flow.Flow, error) {
	nodes := make([]flow.NodeSpec, 0, len(b.order))
	var edges []flow.EdgeSpec
	for _, id := range b.order {
		nb := b.nodes[id]
		nodes = append(nodes, nb.spec)
		edges = append(edges, nb.edges...)
	}

	f, err := flow.Build(b.name, b.name, nodes, edges, b.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build flow %s: %w", b.name, err)
	}
	return f, nil
}

// MustBuild is like Build but panics on error. Intended for tests and static flows.
func (b *Builder) MustBuild() *flow.Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}
