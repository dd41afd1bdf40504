package flow

import (
	"fmt"
	"strings"

	"github.com/aretw0/flux/pkg/domain"
)

// NodeRef addresses a node across flows. It is comparable.
type NodeRef struct {
	Flow string
	Node int
}

// EdgeRef addresses an edge across flows. It is comparable.
type EdgeRef struct {
	Flow string
	Edge int
}

// NodeObject is the object under which the activity of a Start or End node is published.
// Guards reading it (see cond.NodeActive) are re-evaluated when the node toggles.
func NodeObject(flow, node string) domain.ObjectID {
	return domain.ObjectID("@" + flow + "/" + node)
}

// IsNodeObject reports whether id was built by NodeObject.
func IsNodeObject(id domain.ObjectID) bool {
	return strings.HasPrefix(string(id), "@")
}

// Node is a vertex of a Flow. Its owning flow is recorded by name.
type Node struct {
	index     int
	id        string
	name      string
	kind      Kind
	flow      string
	in        []int
	out       []int
	action    domain.Action
	callFlow  string
	callStart string
}

func (n *Node) Index() int      { return n.index }
func (n *Node) ID() string      { return n.id }
func (n *Node) Name() string    { return n.name }
func (n *Node) Kind() Kind      { return n.kind }
func (n *Node) Flow() string    { return n.flow }
func (n *Node) Ref() NodeRef    { return NodeRef{Flow: n.flow, Node: n.index} }
func (n *Node) Incoming() []int { return n.in }
func (n *Node) Outgoing() []int { return n.out }

// Action returns the action of an Action node, nil otherwise.
func (n *Node) Action() domain.Action { return n.action }

// Call returns the called flow and start node of a composed call.
func (n *Node) Call() (flow, start string) { return n.callFlow, n.callStart }

// Repeated reports whether the node may activate again while already active.
// Checkpoints always can; Action nodes can when their action says so.
func (n *Node) Repeated() bool {
	switch n.kind {
	case KindCheckpoint:
		return true
	case KindAction:
		if r, ok := n.action.(domain.Repeatable); ok {
			return r.Repeated()
		}
	}
	return false
}

func (n *Node) String() string { return n.flow + "/" + n.id }

// Edge is a directed, guarded transition between two nodes of the same Flow.
type Edge struct {
	index int
	id    string
	from  int
	to    int
	guard domain.Condition
}

func (e *Edge) Index() int { return e.index }
func (e *Edge) ID() string { return e.id }
func (e *Edge) From() int  { return e.from }
func (e *Edge) To() int    { return e.to }

// Guard is never nil; unguarded edges carry Always.
func (e *Edge) Guard() domain.Condition { return e.guard }

// Flow is an immutable graph of nodes and edges.
type Flow struct {
	id        string
	name      string
	origin    string
	autostart bool
	metadata  map[string]string
	nodes     []Node
	edges     []Edge
	byID      map[string]int
}

func (f *Flow) ID() string      { return f.id }
func (f *Flow) Name() string    { return f.name }
func (f *Flow) Origin() string  { return f.origin }
func (f *Flow) Autostart() bool { return f.autostart }
func (f *Flow) NodeCount() int  { return len(f.nodes) }
func (f *Flow) EdgeCount() int  { return len(f.edges) }

// Metadata returns a copy of the flow's free-form metadata.
func (f *Flow) Metadata() map[string]string {
	out := make(map[string]string, len(f.metadata))
	for k, v := range f.metadata {
		out[k] = v
	}
	return out
}

// Node returns the node at index i.
func (f *Flow) Node(i int) *Node { return &f.nodes[i] }

// Edge returns the edge at index i.
func (f *Flow) Edge(i int) *Edge { return &f.edges[i] }

// Source returns the node an edge leaves from.
func (f *Flow) Source(e *Edge) *Node { return &f.nodes[e.from] }

// Target returns the node an edge points to.
func (f *Flow) Target(e *Edge) *Node { return &f.nodes[e.to] }

// Find looks a node up by ID, then by case-insensitive name.
func (f *Flow) Find(key string) (*Node, bool) {
	if i, ok := f.byID[key]; ok {
		return &f.nodes[i], true
	}
	for i := range f.nodes {
		if strings.EqualFold(f.nodes[i].name, key) {
			return &f.nodes[i], true
		}
	}
	return nil, false
}

// NodesOf returns the nodes of the given kind in authored order.
func (f *Flow) NodesOf(k Kind) []*Node {
	var out []*Node
	for i := range f.nodes {
		if f.nodes[i].kind == k {
			out = append(out, &f.nodes[i])
		}
	}
	return out
}

func (f *Flow) String() string {
	return fmt.Sprintf("flow %s (%d nodes, %d edges)", f.name, len(f.nodes), len(f.edges))
}

type always struct{}

func (always) Eval(domain.View) (bool, error) { return true, nil }
func (always) Objects() []domain.ObjectID     { return nil }
func (always) String() string                 { return "true" }

// Always is the guard of unguarded edges.
var Always domain.Condition = always{}
