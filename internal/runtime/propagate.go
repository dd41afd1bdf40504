package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// propagate re-evaluates everything depending on a changed object: first the
// guarded edges leaving active nodes, then the hooked nodes.
func (s *Session) propagate(ctx context.Context, id domain.ObjectID) error {
	if s.rollingBack {
		return nil
	}
	if s.muted > 0 {
		s.deferChange(id)
		return nil
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	index := s.flows.Index()
	for _, eref := range index.Edges(id) {
		f, e := s.flows.Edge(eref)
		src := flow.NodeRef{Flow: f.Name(), Node: e.From()}
		for _, run := range s.runsWhere(src) {
			if err := s.checkEdge(ctx, run, f, e, string(id)); err != nil {
				return err
			}
		}
	}
	for _, ref := range index.Hooked(id) {
		for _, run := range s.runsWhere(ref) {
			if err := s.refresh(ctx, run, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) deferChange(id domain.ObjectID) {
	for _, d := range s.deferred {
		if d == id {
			return
		}
	}
	s.deferred = append(s.deferred, id)
}

func (s *Session) flushDeferred(ctx context.Context) error {
	for len(s.deferred) > 0 {
		id := s.deferred[0]
		s.deferred = s.deferred[1:]
		if err := s.propagate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// checkSuccessors fires or retracts every outgoing edge of an active node, in authored order.
func (s *Session) checkSuccessors(ctx context.Context, run *Run, n *flow.Node) error {
	if !run.Active(n.Ref()) {
		return nil
	}
	f, _ := s.flows.Flow(n.Flow())
	for _, ei := range n.Outgoing() {
		if !run.Active(n.Ref()) {
			return nil
		}
		if err := s.checkEdge(ctx, run, f, f.Edge(ei), ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) checkEdge(ctx context.Context, run *Run, f *flow.Flow, e *flow.Edge, trigger string) error {
	if !s.hasRun(run) {
		return nil
	}
	ref := flow.EdgeRef{Flow: f.Name(), Edge: e.Index()}
	holds := s.evalEdge(ctx, run, f, e)
	fired := run.Fired(ref)
	switch {
	case holds && !fired:
		return s.fire(ctx, run, f, e, trigger)
	case !holds && fired:
		return s.unfire(ctx, run, f, e)
	}
	return nil
}

// evalEdge is the edge guard AND-ed with the preconditions of composed calls
// on either end.
func (s *Session) evalEdge(ctx context.Context, run *Run, f *flow.Flow, e *flow.Edge) bool {
	src, dst := f.Source(e), f.Target(e)
	if !run.Active(src.Ref()) {
		return false
	}
	if src.Kind() == flow.KindCall && !s.callExitAllowed(run, src) {
		return false
	}
	if dst.Kind() == flow.KindCall && !s.callAdmitted(run, dst) {
		return false
	}
	ok, err := e.Guard().Eval(s.view(ctx))
	if err != nil {
		if errors.Is(err, domain.ErrNoValue) || errors.Is(err, domain.ErrUnknownValue) {
			s.logger.DebugContext(ctx, "guard not evaluable", "flow", f.Name(), "edge", e.ID(), "error", err)
		} else {
			s.logger.WarnContext(ctx, "guard evaluation failed", "flow", f.Name(), "edge", e.ID(), "error", err)
		}
		return false
	}
	return ok
}

func (s *Session) fire(ctx context.Context, run *Run, f *flow.Flow, e *flow.Edge, trigger string) error {
	ref := flow.EdgeRef{Flow: f.Name(), Edge: e.Index()}
	s.setFired(run, ref, true)
	s.emit(ctx, domain.Event{Type: domain.EventEdgeFired, Run: run.id, Flow: f.Name(), Edge: e.ID(), Object: domain.ObjectID(trigger)})
	return s.addSupport(ctx, run, f.Target(e).Ref(), EdgeSupport{Edge: ref, Trigger: trigger})
}

func (s *Session) unfire(ctx context.Context, run *Run, f *flow.Flow, e *flow.Edge) error {
	ref := flow.EdgeRef{Flow: f.Name(), Edge: e.Index()}
	s.setFired(run, ref, false)
	s.emit(ctx, domain.Event{Type: domain.EventEdgeRetracted, Run: run.id, Flow: f.Name(), Edge: e.ID()})
	return s.removeSupport(ctx, run, f.Target(e).Ref(), EdgeSupport{Edge: ref}.Key())
}

// addSupport adds a justification to a node and activates it if it could activate.
// Adding a support that does not currently hold is an invariant violation.
func (s *Session) addSupport(ctx context.Context, run *Run, ref flow.NodeRef, sup Support) error {
	n := s.flows.Node(ref)
	if !s.supportHolds(ctx, run, n, sup) {
		return &domain.InvariantError{Op: "addSupport", Detail: "invalid support " + sup.String() + " for " + n.String()}
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	wasActive := run.Active(ref)
	if !s.pushSupport(run, ref, sup) {
		s.logger.DebugContext(ctx, "support already present", "node", n.String(), "support", sup.String())
		return nil
	}
	s.emit(ctx, domain.Event{Type: domain.EventSupportAdded, Run: run.id, Flow: n.Flow(), Node: n.ID(), Detail: sup.String()})
	if wasActive && !n.Repeated() {
		return nil
	}
	return s.activate(ctx, run, n, wasActive)
}

// removeSupport drops a justification and deactivates the node when none remain.
func (s *Session) removeSupport(ctx context.Context, run *Run, ref flow.NodeRef, key string) error {
	sup, ok := s.popSupport(run, ref, key)
	if !ok {
		return nil
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	n := s.flows.Node(ref)
	s.emit(ctx, domain.Event{Type: domain.EventSupportRemoved, Run: run.id, Flow: n.Flow(), Node: n.ID(), Detail: sup.String()})
	if run.Active(ref) {
		return s.evictUnfounded(ctx, run)
	}
	return s.deactivate(ctx, run, n)
}

// evictUnfounded deactivates the nodes of run that only support each other.
// Every active node must trace back, through fired edges and composed calls,
// to a node holding a permanent support; a cycle whose entry edge was
// retracted does not, and loses the supports its members lend each other.
func (s *Session) evictUnfounded(ctx context.Context, run *Run) error {
	members := run.Members()
	founded := make(map[flow.NodeRef]bool, len(members))
	for changed := true; changed; {
		changed = false
		for _, ref := range members {
			if founded[ref] {
				continue
			}
			for _, sup := range run.Data(ref).Supports() {
				if s.foundedBy(sup, founded) {
					founded[ref] = true
					changed = true
					break
				}
			}
		}
	}

	for _, ref := range members {
		if founded[ref] {
			continue
		}
		for _, sup := range run.Data(ref).Supports() {
			if !run.Data(ref).Has(sup.Key()) {
				continue
			}
			if err := s.dropSupport(ctx, run, ref, sup); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) foundedBy(sup Support, founded map[flow.NodeRef]bool) bool {
	switch sup := sup.(type) {
	case ValidSupport:
		return true
	case EdgeSupport:
		f, e := s.flows.Edge(sup.Edge)
		return founded[flow.NodeRef{Flow: f.Name(), Node: e.From()}]
	case CallSupport:
		return founded[sup.Caller]
	default:
		return false
	}
}

// dropSupport removes a support, retracting the edge behind it when there is one.
func (s *Session) dropSupport(ctx context.Context, run *Run, ref flow.NodeRef, sup Support) error {
	if es, ok := sup.(EdgeSupport); ok && run.Fired(es.Edge) {
		f, e := s.flows.Edge(es.Edge)
		return s.unfire(ctx, run, f, e)
	}
	return s.removeSupport(ctx, run, ref, sup.Key())
}

// checkSupport re-validates every support of a node, evicting the ones that no
// longer hold, and reports whether the node is still active.
func (s *Session) checkSupport(ctx context.Context, run *Run, ref flow.NodeRef) (bool, error) {
	n := s.flows.Node(ref)
	for _, sup := range run.Data(ref).Supports() {
		if !run.Data(ref).Has(sup.Key()) || s.supportHolds(ctx, run, n, sup) {
			continue
		}
		if err := s.dropSupport(ctx, run, ref, sup); err != nil {
			return false, err
		}
	}
	return run.Active(ref), nil
}

func (s *Session) supportHolds(ctx context.Context, run *Run, n *flow.Node, sup Support) bool {
	switch sup := sup.(type) {
	case ValidSupport:
		return true
	case EdgeSupport:
		f, e := s.flows.Edge(sup.Edge)
		if f.Name() != n.Flow() || e.To() != n.Index() {
			return false
		}
		return s.evalEdge(ctx, run, f, e)
	case CallSupport:
		caller := s.flows.Node(sup.Caller)
		if caller.Kind() != flow.KindCall || !run.Active(sup.Caller) {
			return false
		}
		target, err := s.flows.ResolveStart(caller.Call())
		return err == nil && target == n.Ref()
	default:
		return false
	}
}

// refresh re-checks a hooked node and re-runs its action while it stays active.
// Undo and redo count as one change: dependents re-check against the net
// result, so an unchanged derived value leaves them untouched.
func (s *Session) refresh(ctx context.Context, run *Run, ref flow.NodeRef) error {
	active, err := s.checkSupport(ctx, run, ref)
	if err != nil || !active {
		return err
	}
	n := s.flows.Node(ref)
	src := domain.FromNode(n.Flow(), n.ID())

	s.muted++
	err = s.undoAction(ctx, n, src)
	if err == nil {
		err = s.doAction(ctx, n, src)
	}
	s.muted--
	if err != nil {
		return err
	}
	return s.flushDeferred(ctx)
}
