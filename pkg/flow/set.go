package flow

import (
	"fmt"
	"sync"

	"github.com/aretw0/flux/pkg/domain"
)

// Set is the registry of flows by name and owner of the dependency Index.
// Flows are registered during setup; afterwards the Set is read concurrently.
type Set struct {
	mu    sync.RWMutex
	flows map[string]*Flow
	order []string
	index *Index
	known map[domain.ObjectID]bool
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithTerminology restricts guards and actions to the given objects.
// Without it any object is accepted.
func WithTerminology(ids ...domain.ObjectID) SetOption {
	return func(s *Set) {
		if s.known == nil {
			s.known = make(map[domain.ObjectID]bool, len(ids))
		}
		for _, id := range ids {
			s.known[id] = true
		}
	}
}

// NewSet creates an empty registry.
func NewSet(opts ...SetOption) *Set {
	s := &Set{
		flows: make(map[string]*Flow),
		index: NewIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a flow and indexes it. Names must be unique.
func (s *Set) Register(f *Flow) error {
	if f == nil {
		return fmt.Errorf("register: nil flow")
	}
	if err := s.checkTerminology(f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.flows[f.name]; dup {
		return fmt.Errorf("register %q: %w", f.name, domain.ErrDuplicateFlow)
	}
	s.flows[f.name] = f
	s.order = append(s.order, f.name)
	s.index.Add(f)
	return nil
}

func (s *Set) checkTerminology(f *Flow) error {
	if s.known == nil {
		return nil
	}
	var errs []error
	check := func(element string, ids []domain.ObjectID) {
		for _, id := range ids {
			if !s.known[id] && !IsNodeObject(id) {
				errs = append(errs, &domain.ValidationError{Flow: f.name, Element: element, Reason: fmt.Sprintf("unknown object %q", id)})
			}
		}
	}
	for i := range f.edges {
		check("edge "+f.edges[i].id, f.edges[i].guard.Objects())
	}
	for i := range f.nodes {
		n := &f.nodes[i]
		if n.action == nil {
			continue
		}
		check("node "+n.id, n.action.Objects())
		if h, ok := n.action.(domain.Hooked); ok {
			check("node "+n.id, h.HookedObjects())
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &domain.AggregateError{Errors: errs}
	}
}

// Flow returns a registered flow by name.
func (s *Set) Flow(name string) (*Flow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[name]
	return f, ok
}

// Flows returns the registered flows in registration order.
func (s *Set) Flows() []*Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Flow, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.flows[name])
	}
	return out
}

// Index returns the dependency index.
func (s *Set) Index() *Index { return s.index }

// Node dereferences a NodeRef. It panics on a ref not produced by this Set.
func (s *Set) Node(ref NodeRef) *Node {
	f, ok := s.Flow(ref.Flow)
	if !ok {
		panic(fmt.Sprintf("flow: dangling node ref %v", ref))
	}
	return f.Node(ref.Node)
}

// Edge dereferences an EdgeRef. It panics on a ref not produced by this Set.
func (s *Set) Edge(ref EdgeRef) (*Flow, *Edge) {
	f, ok := s.Flow(ref.Flow)
	if !ok {
		panic(fmt.Sprintf("flow: dangling edge ref %v", ref))
	}
	return f, f.Edge(ref.Edge)
}

// Lookup finds a node by flow name and node ID or name.
func (s *Set) Lookup(flowName, node string) (NodeRef, bool) {
	f, ok := s.Flow(flowName)
	if !ok {
		return NodeRef{}, false
	}
	n, ok := f.Find(node)
	if !ok {
		return NodeRef{}, false
	}
	return n.Ref(), true
}

// ResolveStart resolves the Start node a composed call or an explicit start enters.
func (s *Set) ResolveStart(flowName, start string) (NodeRef, error) {
	if start == "" {
		start = DefaultStart
	}
	f, ok := s.Flow(flowName)
	if !ok {
		return NodeRef{}, &domain.ConfigError{Flow: flowName, Start: start, Reason: domain.ErrFlowNotFound.Error()}
	}
	n, ok := f.Find(start)
	if !ok {
		return NodeRef{}, &domain.ConfigError{Flow: flowName, Start: start, Reason: domain.ErrNodeNotFound.Error()}
	}
	if n.kind != KindStart {
		return NodeRef{}, &domain.ConfigError{Flow: flowName, Start: start, Reason: fmt.Sprintf("node is a %s node", n.kind)}
	}
	return n.Ref(), nil
}

// Callers returns every composed call node targeting the named flow.
func (s *Set) Callers(flowName string) []NodeRef {
	var out []NodeRef
	for _, f := range s.Flows() {
		for _, n := range f.NodesOf(KindCall) {
			if n.callFlow == flowName {
				out = append(out, n.Ref())
			}
		}
	}
	return out
}

// Autostart returns the start nodes of every flow marked autostart.
func (s *Set) Autostart() []NodeRef {
	var out []NodeRef
	for _, f := range s.Flows() {
		if !f.autostart {
			continue
		}
		for _, n := range f.NodesOf(KindStart) {
			out = append(out, n.Ref())
		}
	}
	return out
}

// Check verifies that every composed call targets a registered flow and start node.
func (s *Set) Check() error {
	var errs []error
	for _, f := range s.Flows() {
		for _, n := range f.NodesOf(KindCall) {
			if _, err := s.ResolveStart(n.callFlow, n.callStart); err != nil {
				errs = append(errs, &domain.ValidationError{Flow: f.name, Element: "node " + n.id, Reason: err.Error()})
			}
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &domain.AggregateError{Errors: errs}
	}
}

// PotentialSources returns the objects read by the guards leading to any
// Action node that derives id. This is the static counterpart of a session's
// active derivation sources.
func (s *Set) PotentialSources(id domain.ObjectID) []domain.ObjectID {
	var out []domain.ObjectID
	seen := make(map[domain.ObjectID]bool)
	for _, ref := range s.index.Deriving(id) {
		f, _ := s.Flow(ref.Flow)
		for _, ei := range f.Node(ref.Node).in {
			for _, obj := range f.Edge(ei).guard.Objects() {
				if !seen[obj] {
					seen[obj] = true
					out = append(out, obj)
				}
			}
		}
	}
	return out
}
