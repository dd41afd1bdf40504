package flow

import (
	"sort"

	"github.com/aretw0/flux/pkg/domain"
)

// Index is the object-to-graph dependency index.
//
// Edges lists, per object, the edges whose guard reads it, in registration
// order and authored order within a flow. Hooked lists the nodes whose action
// must be refreshed when the object changes. Deriving lists the Action nodes
// that derive the object.
type Index struct {
	edges    map[domain.ObjectID][]EdgeRef
	hooked   map[domain.ObjectID][]NodeRef
	deriving map[domain.ObjectID][]NodeRef
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		edges:    make(map[domain.ObjectID][]EdgeRef),
		hooked:   make(map[domain.ObjectID][]NodeRef),
		deriving: make(map[domain.ObjectID][]NodeRef),
	}
}

// Add indexes every edge and node of f. Always-true guards are skipped.
// Edges entering a composed call are also indexed on the called start node,
// so their admission is re-checked when the callee toggles.
func (x *Index) Add(f *Flow) {
	for i := range f.edges {
		e := &f.edges[i]
		ref := EdgeRef{Flow: f.name, Edge: e.index}
		seen := make(map[domain.ObjectID]bool)
		add := func(id domain.ObjectID) {
			if seen[id] {
				return
			}
			seen[id] = true
			x.edges[id] = append(x.edges[id], ref)
		}
		for _, id := range e.guard.Objects() {
			add(id)
		}
		if target := &f.nodes[e.to]; target.kind == KindCall {
			add(NodeObject(target.callFlow, target.callStart))
		}
	}
	for i := range f.nodes {
		n := &f.nodes[i]
		if n.kind != KindAction {
			continue
		}
		for _, id := range n.action.Objects() {
			x.deriving[id] = append(x.deriving[id], n.Ref())
		}
		if h, ok := n.action.(domain.Hooked); ok {
			for _, id := range h.HookedObjects() {
				x.hooked[id] = append(x.hooked[id], n.Ref())
			}
		}
	}
}

// Edges returns the edges whose guard reads id.
func (x *Index) Edges(id domain.ObjectID) []EdgeRef { return x.edges[id] }

// Hooked returns the nodes that must be refreshed when id changes.
func (x *Index) Hooked(id domain.ObjectID) []NodeRef { return x.hooked[id] }

// Deriving returns the Action nodes deriving id.
func (x *Index) Deriving(id domain.ObjectID) []NodeRef { return x.deriving[id] }

// Objects returns every indexed object, sorted.
func (x *Index) Objects() []domain.ObjectID {
	set := make(map[domain.ObjectID]bool)
	for id := range x.edges {
		set[id] = true
	}
	for id := range x.hooked {
		set[id] = true
	}
	out := make([]domain.ObjectID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
