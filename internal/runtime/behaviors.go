package runtime

import (
	"context"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// activate runs the variant behavior of a node that just gained support.
// again is set when a repeatable node, already active, activates once more.
func (s *Session) activate(ctx context.Context, run *Run, n *flow.Node, again bool) error {
	ref := n.Ref()
	if !again {
		s.markActive(run, ref)
		s.nodeEvent(ctx, domain.EventNodeActivated, run, n, "")
	} else {
		s.nodeEvent(ctx, domain.EventNodeActivated, run, n, "repeated")
	}

	switch n.Kind() {
	case flow.KindStart:
		if err := s.publishActivity(ctx, n); err != nil {
			return err
		}
	case flow.KindEnd:
		if s.engine.rootCompletion && s.isRoot(run, n.Flow()) {
			if s.register(pending{run: run, node: ref, end: true}) {
				s.nodeEvent(ctx, domain.EventCheckpointRegistered, run, n, "completion")
			}
		}
		if err := s.publishActivity(ctx, n); err != nil {
			return err
		}
		return s.notifyCallers(ctx, run, n.Flow())
	case flow.KindAction:
		if err := s.doAction(ctx, n, domain.FromNode(n.Flow(), n.ID())); err != nil {
			return err
		}
	case flow.KindCall:
		if err := s.invoke(ctx, run, n); err != nil {
			return err
		}
	case flow.KindCheckpoint:
		if s.register(pending{run: run, node: ref}) {
			s.nodeEvent(ctx, domain.EventCheckpointRegistered, run, n, "")
		}
		return nil
	}
	return s.checkSuccessors(ctx, run, n)
}

// deactivate retracts the outgoing edges of a node that lost its last support
// and undoes its variant behavior.
func (s *Session) deactivate(ctx context.Context, run *Run, n *flow.Node) error {
	ref := n.Ref()
	s.markInactive(run, ref)
	s.nodeEvent(ctx, domain.EventNodeDeactivated, run, n, "")

	f, _ := s.flows.Flow(n.Flow())
	for _, ei := range n.Outgoing() {
		eref := flow.EdgeRef{Flow: f.Name(), Edge: ei}
		if !run.Fired(eref) {
			continue
		}
		if err := s.unfire(ctx, run, f, f.Edge(ei)); err != nil {
			return err
		}
	}

	switch n.Kind() {
	case flow.KindStart:
		return s.publishActivity(ctx, n)
	case flow.KindEnd:
		if s.unregister(run, ref) {
			s.nodeEvent(ctx, domain.EventCheckpointUnregistered, run, n, "completion")
		}
		if err := s.publishActivity(ctx, n); err != nil {
			return err
		}
		return s.notifyCallers(ctx, run, n.Flow())
	case flow.KindAction:
		return s.undoAction(ctx, n, domain.FromNode(n.Flow(), n.ID()))
	case flow.KindCall:
		target, err := s.flows.ResolveStart(n.Call())
		if err != nil {
			// Nothing was entered if the target no longer resolves.
			s.logger.DebugContext(ctx, "call target not resolvable on deactivation", "node", n.String(), "error", err)
			return nil
		}
		return s.removeSupport(ctx, run, target, CallSupport{Caller: ref}.Key())
	case flow.KindCheckpoint:
		if s.unregister(run, ref) {
			s.nodeEvent(ctx, domain.EventCheckpointUnregistered, run, n, "")
		}
	}
	return nil
}

func (s *Session) doAction(ctx context.Context, n *flow.Node, src domain.Source) error {
	a := n.Action()
	if a == nil {
		return nil
	}
	if err := a.Do(ctx, s.view(ctx), src); err != nil {
		return wrapAction(n, err)
	}
	return nil
}

func (s *Session) undoAction(ctx context.Context, n *flow.Node, src domain.Source) error {
	a := n.Action()
	if a == nil {
		return nil
	}
	if err := a.Undo(ctx, s.view(ctx), src); err != nil {
		return wrapAction(n, err)
	}
	return nil
}

// wrapAction attributes a failure to the innermost failing node only.
func wrapAction(n *flow.Node, err error) error {
	switch err.(type) {
	case *domain.ActionError, *domain.InvariantError, *domain.DepthError, *domain.ConfigError:
		return err
	}
	return &domain.ActionError{Flow: n.Flow(), Node: n.ID(), Err: err}
}

// invoke enters the called flow's Start node inside the caller's run.
func (s *Session) invoke(ctx context.Context, run *Run, n *flow.Node) error {
	target, err := s.flows.ResolveStart(n.Call())
	if err != nil {
		return err
	}
	for _, r := range s.runs {
		for _, sup := range r.Data(target).Supports() {
			if cs, ok := sup.(CallSupport); ok && cs.Caller == n.Ref() && r == run {
				continue
			}
			return &domain.InvariantError{Op: "invoke", Detail: "racing call from " + n.String() + " into " + s.flows.Node(target).String()}
		}
	}
	return s.addSupport(ctx, run, target, CallSupport{Caller: n.Ref()})
}

// callAdmitted is the precondition of edges entering a composed call: the
// called Start node must not be active on behalf of anyone else.
func (s *Session) callAdmitted(run *Run, n *flow.Node) bool {
	target, err := s.flows.ResolveStart(n.Call())
	if err != nil {
		return true
	}
	for _, r := range s.runs {
		for _, sup := range r.Data(target).Supports() {
			if cs, ok := sup.(CallSupport); ok && cs.Caller == n.Ref() && r == run {
				continue
			}
			return false
		}
	}
	return true
}

// callExitAllowed is the precondition of edges leaving a composed call: the
// call is a start node of its run, or no other run starts inside the called flow.
func (s *Session) callExitAllowed(run *Run, n *flow.Node) bool {
	if run.IsStart(n.Ref()) {
		return true
	}
	callee, _ := n.Call()
	for _, r := range s.runs {
		if r != run && r.startsIn(callee) {
			return false
		}
	}
	return true
}

// activeCallers returns the active composed calls of run targeting flowName.
func (s *Session) activeCallers(run *Run, flowName string) []*flow.Node {
	var out []*flow.Node
	for _, ref := range run.order {
		n := s.flows.Node(ref)
		if n.Kind() != flow.KindCall {
			continue
		}
		if callee, _ := n.Call(); callee == flowName {
			out = append(out, n)
		}
	}
	return out
}

// isRoot reports whether flowName was entered directly in run rather than called.
func (s *Session) isRoot(run *Run, flowName string) bool {
	return run.startsIn(flowName) && len(s.activeCallers(run, flowName)) == 0
}

// notifyCallers re-checks the exits of the composed calls waiting on flowName.
func (s *Session) notifyCallers(ctx context.Context, run *Run, flowName string) error {
	for _, c := range s.activeCallers(run, flowName) {
		if err := s.checkSuccessors(ctx, run, c); err != nil {
			return err
		}
	}
	return nil
}

// publishActivity propagates the activity object of a Start or End node.
func (s *Session) publishActivity(ctx context.Context, n *flow.Node) error {
	if err := s.propagate(ctx, flow.NodeObject(n.Flow(), n.ID())); err != nil {
		return err
	}
	if n.Name() != n.ID() {
		return s.propagate(ctx, flow.NodeObject(n.Flow(), n.Name()))
	}
	return nil
}
