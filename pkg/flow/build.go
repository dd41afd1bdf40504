package flow

import (
	"fmt"

	"github.com/aretw0/flux/pkg/domain"
)

// DefaultStart is the start node a composed call enters when none is named.
const DefaultStart = "start"

// NodeSpec describes a node to Build.
type NodeSpec struct {
	ID     string
	Name   string
	Kind   Kind
	Action domain.Action
	// CallFlow and CallStart name the target of a KindCall node.
	CallFlow  string
	CallStart string
}

// EdgeSpec describes an edge to Build. From and To are node IDs.
// A nil Guard is always true.
type EdgeSpec struct {
	ID    string
	From  string
	To    string
	Guard domain.Condition
}

// Option configures optional flow attributes.
type Option func(*Flow)

// WithOrigin records where the flow was loaded from.
func WithOrigin(origin string) Option {
	return func(f *Flow) { f.origin = origin }
}

// WithAutostart marks the flow's start nodes to be entered when a session initializes.
func WithAutostart(on bool) Option {
	return func(f *Flow) { f.autostart = on }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]string) Option {
	return func(f *Flow) {
		for k, v := range md {
			f.metadata[k] = v
		}
	}
}

// Build constructs an immutable Flow, rejecting malformed graphs.
// Every problem found is reported; a single problem is returned as a
// *domain.ValidationError, several as a *domain.AggregateError.
func Build(id, name string, nodes []NodeSpec, edges []EdgeSpec, opts ...Option) (*Flow, error) {
	if name == "" {
		name = id
	}
	if id == "" {
		id = name
	}
	f := &Flow{
		id:       id,
		name:     name,
		metadata: make(map[string]string),
		nodes:    make([]Node, 0, len(nodes)),
		edges:    make([]Edge, 0, len(edges)),
		byID:     make(map[string]int, len(nodes)),
	}
	for _, opt := range opts {
		opt(f)
	}

	var errs []error
	fail := func(element, format string, args ...any) {
		errs = append(errs, &domain.ValidationError{Flow: name, Element: element, Reason: fmt.Sprintf(format, args...)})
	}
	if name == "" {
		fail("", "flow has no name")
	}

	for _, spec := range nodes {
		el := "node " + spec.ID
		if spec.ID == "" {
			fail("node", "empty id")
			continue
		}
		if _, dup := f.byID[spec.ID]; dup {
			fail(el, "duplicate id")
			continue
		}
		if !spec.Kind.Valid() {
			fail(el, "invalid kind %s", spec.Kind)
			continue
		}
		switch spec.Kind {
		case KindAction:
			if spec.Action == nil {
				fail(el, "action node without action")
			}
		case KindCall:
			if spec.CallFlow == "" {
				fail(el, "call node without target flow")
			}
		}
		if spec.Kind != KindAction && spec.Action != nil {
			fail(el, "%s node cannot carry an action", spec.Kind)
		}
		n := Node{
			index:  len(f.nodes),
			id:     spec.ID,
			name:   spec.Name,
			kind:   spec.Kind,
			flow:   name,
			action: spec.Action,
		}
		if n.name == "" {
			n.name = spec.ID
		}
		if spec.Kind == KindCall {
			n.callFlow = spec.CallFlow
			n.callStart = spec.CallStart
			if n.callStart == "" {
				n.callStart = DefaultStart
			}
		}
		f.byID[spec.ID] = n.index
		f.nodes = append(f.nodes, n)
	}

	edgeIDs := make(map[string]bool, len(edges))
	for _, spec := range edges {
		eid := spec.ID
		if eid == "" {
			eid = fmt.Sprintf("%s->%s#%d", spec.From, spec.To, len(f.edges))
		}
		el := "edge " + eid
		if edgeIDs[eid] {
			fail(el, "duplicate id")
			continue
		}
		from, okFrom := f.byID[spec.From]
		to, okTo := f.byID[spec.To]
		if !okFrom {
			fail(el, "unknown source node %q", spec.From)
		}
		if !okTo {
			fail(el, "unknown target node %q", spec.To)
		}
		if !okFrom || !okTo {
			continue
		}
		if f.nodes[to].kind == KindStart {
			fail(el, "start node %q cannot have incoming edges", spec.To)
			continue
		}
		if f.nodes[from].kind == KindEnd {
			fail(el, "end node %q cannot have outgoing edges", spec.From)
			continue
		}
		guard := spec.Guard
		if guard == nil {
			guard = Always
		}
		edgeIDs[eid] = true
		e := Edge{index: len(f.edges), id: eid, from: from, to: to, guard: guard}
		f.nodes[from].out = append(f.nodes[from].out, e.index)
		f.nodes[to].in = append(f.nodes[to].in, e.index)
		f.edges = append(f.edges, e)
	}

	switch len(errs) {
	case 0:
		return f, nil
	case 1:
		return nil, errs[0]
	default:
		return nil, &domain.AggregateError{Errors: errs}
	}
}
