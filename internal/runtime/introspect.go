package runtime

import (
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// IsActive reports whether the node is active in any run of the session.
func (s *Session) IsActive(flowName, node string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeActive(flowName, node)
}

// ActiveRuns returns the runs containing an active node of the given flow.
func (s *Session) ActiveRuns(flowName string) []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunInfo
	for _, r := range s.runs {
		for _, ref := range r.order {
			if ref.Flow == flowName {
				out = append(out, s.describe(r))
				break
			}
		}
	}
	return out
}

// Runs returns every run of the session.
func (s *Session) Runs() []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, s.describe(r))
	}
	return out
}

// ActiveNodes returns the IDs of the active nodes of a flow, across runs.
func (s *Session) ActiveNodes(flowName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.runs {
		for _, ref := range r.order {
			if ref.Flow != flowName {
				continue
			}
			id := s.flows.Node(ref).ID()
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Supports returns the supports a node holds in each run where it is active, keyed by run ID.
func (s *Session) Supports(flowName, node string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.flows.Lookup(flowName, node)
	if !ok {
		return nil
	}
	out := make(map[string][]string)
	for _, r := range s.runs {
		for _, sup := range r.Data(ref).Supports() {
			out[r.id] = append(out[r.id], sup.Key())
		}
	}
	return out
}

// PendingCheckpoints returns the checkpoints registered and not yet resolved.
// Outside a transaction it is always empty.
func (s *Session) PendingCheckpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, s.flows.Node(p.node).String())
	}
	return out
}

// LatestSnapshot returns the cycle in which a snapshot was last taken at a node.
func (s *Session) LatestSnapshot(flowName, node string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.flows.Lookup(flowName, node)
	if !ok {
		return 0, false
	}
	c, ok := s.snapshots[ref]
	return c, ok
}

// Cycle returns the number of propagation cycles that resolved checkpoints.
func (s *Session) Cycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// DerivationSources returns the objects read by the fired edges leading to the
// active nodes that derive id.
func (s *Session) DerivationSources(id domain.ObjectID) []domain.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ObjectID
	seen := make(map[domain.ObjectID]bool)
	for _, ref := range s.flows.Index().Deriving(id) {
		n := s.flows.Node(ref)
		f, _ := s.flows.Flow(ref.Flow)
		for _, r := range s.runsWhere(ref) {
			for _, ei := range n.Incoming() {
				if !r.Fired(flow.EdgeRef{Flow: ref.Flow, Edge: ei}) {
					continue
				}
				for _, obj := range f.Edge(ei).Guard().Objects() {
					if !seen[obj] {
						seen[obj] = true
						out = append(out, obj)
					}
				}
			}
		}
	}
	return out
}

func (s *Session) describe(r *Run) RunInfo {
	info := RunInfo{ID: r.id}
	for _, ref := range r.starts {
		info.Starts = append(info.Starts, s.flows.Node(ref).String())
	}
	for _, ref := range r.order {
		info.Nodes = append(info.Nodes, s.flows.Node(ref).String())
	}
	return info
}
