package runtime

import (
	"github.com/aretw0/flux/pkg/flow"
	"github.com/google/uuid"
)

// Run is one independent execution path through one or more flows.
// Called sub-flows join the run of their caller.
type Run struct {
	id     string
	starts []flow.NodeRef
	nodes  map[flow.NodeRef]*NodeData
	order  []flow.NodeRef
	fired  map[flow.EdgeRef]bool
}

func newRun() *Run {
	return &Run{
		id:    uuid.NewString(),
		nodes: make(map[flow.NodeRef]*NodeData),
		fired: make(map[flow.EdgeRef]bool),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Active reports whether the node holds support in this run.
func (r *Run) Active(ref flow.NodeRef) bool { return r.nodes[ref].Supported() }

// Fired reports whether the edge fired in this run.
func (r *Run) Fired(ref flow.EdgeRef) bool { return r.fired[ref] }

// IsStart reports whether the node is a start node of this run.
func (r *Run) IsStart(ref flow.NodeRef) bool {
	for _, s := range r.starts {
		if s == ref {
			return true
		}
	}
	return false
}

// Starts returns the start nodes of the run.
func (r *Run) Starts() []flow.NodeRef { return append([]flow.NodeRef(nil), r.starts...) }

// Members returns the active nodes in activation order.
func (r *Run) Members() []flow.NodeRef { return append([]flow.NodeRef(nil), r.order...) }

// Data returns the support set of a node, nil when it never held support.
func (r *Run) Data(ref flow.NodeRef) *NodeData { return r.nodes[ref] }

func (r *Run) data(ref flow.NodeRef) *NodeData {
	d, ok := r.nodes[ref]
	if !ok {
		d = &NodeData{}
		r.nodes[ref] = d
	}
	return d
}

func (r *Run) startsIn(flowName string) bool {
	for _, s := range r.starts {
		if s.Flow == flowName {
			return true
		}
	}
	return false
}

// RunInfo is a read-only description of a run.
type RunInfo struct {
	ID     string   `json:"id"`
	Starts []string `json:"starts"`
	Nodes  []string `json:"nodes"`
}
