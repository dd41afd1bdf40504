package runtime

import (
	"context"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// resolve runs at the end of the outermost transaction. Every run holding a
// pending checkpoint is snapshotted: the facts derived by its active nodes are
// re-attributed to the checkpoint, the run is replaced by a fresh one starting
// at the checkpoint, and propagation resumes from there. Runs whose root flow
// reached an End node are snapshotted and closed. A checkpoint is taken at
// most once per cycle; registrations repeated within the cycle are dropped.
func (s *Session) resolve(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	prevCycle := s.cycle
	s.cycle++
	s.record(func() { s.cycle = prevCycle })

	taken := make(map[flow.NodeRef]bool)
	for len(s.pending) > 0 {
		batch := s.drainPending()

		var order []*Run
		groups := make(map[*Run][]pending)
		for _, p := range batch {
			n := s.flows.Node(p.node)
			if taken[p.node] {
				s.logger.DebugContext(ctx, "checkpoint already taken in this cycle", "node", n.String())
				continue
			}
			if !s.hasRun(p.run) || !p.run.Active(p.node) {
				continue
			}
			if _, seen := groups[p.run]; !seen {
				order = append(order, p.run)
			}
			groups[p.run] = append(groups[p.run], p)
		}

		for _, run := range order {
			group := groups[run]
			if !s.hasRun(run) {
				continue
			}
			for _, p := range group {
				taken[p.node] = true
			}
			if err := s.snapshot(ctx, run, group); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) snapshot(ctx context.Context, run *Run, group []pending) error {
	var checkpoints []flow.NodeRef
	author := group[0].node
	for _, p := range group {
		if !p.end {
			if len(checkpoints) == 0 {
				author = p.node
			}
			checkpoints = append(checkpoints, p.node)
		}
	}
	an := s.flows.Node(author)
	src := domain.FromCheckpoint(an.Flow(), an.ID())
	members := run.Members()

	// Re-attribute derived facts. Changes are collected and propagated once the
	// run has been replaced, so the old run never reacts to its own snapshot.
	s.muted++
	for _, ref := range members {
		n := s.flows.Node(ref)
		if n.Kind() != flow.KindAction {
			continue
		}
		if err := s.undoAction(ctx, n, domain.FromNode(n.Flow(), n.ID())); err != nil {
			s.muted--
			return err
		}
		if err := s.doAction(ctx, n, src); err != nil {
			s.muted--
			return err
		}
	}
	s.muted--
	s.markSnapshot(author)

	names := make([]string, len(members))
	for i, ref := range members {
		names[i] = s.flows.Node(ref).String()
	}
	s.emit(ctx, domain.Event{Type: domain.EventSnapshotTaken, Run: run.id, Flow: an.Flow(), Node: an.ID(), Kind: an.Kind().String(), Members: names})
	s.logger.InfoContext(ctx, "snapshot taken", "node", an.String(), "run", run.id, "members", len(members))

	var next *Run
	var seeds []flow.NodeRef
	if len(checkpoints) > 0 {
		seeds = append(seeds, checkpoints...)
		seeds = append(seeds, s.ancestors(run, checkpoints)...)
		next = newRun()
		s.addRun(next)
		for _, ref := range seeds {
			s.seed(ctx, next, ref)
		}
	}

	s.removeRun(run)
	var stale []flow.NodeRef
	for _, p := range s.pending {
		if p.run == run {
			stale = append(stale, p.node)
		}
	}
	for _, ref := range stale {
		s.unregister(run, ref)
	}
	if next == nil {
		s.emit(ctx, domain.Event{Type: domain.EventRunCompleted, Run: run.id, Flow: an.Flow(), Node: an.ID(), Members: names})
	} else {
		s.emit(ctx, domain.Event{Type: domain.EventRunClosed, Run: run.id, Detail: "replaced by " + next.id, Members: names})
	}

	// Start and End nodes of the dropped run changed activity.
	for _, ref := range members {
		n := s.flows.Node(ref)
		if (n.Kind() == flow.KindStart || n.Kind() == flow.KindEnd) && !s.activeAnywhere(ref) {
			s.deferChange(flow.NodeObject(n.Flow(), n.ID()))
			if n.Name() != n.ID() {
				s.deferChange(flow.NodeObject(n.Flow(), n.Name()))
			}
		}
	}
	if err := s.flushDeferred(ctx); err != nil {
		return err
	}

	if next != nil {
		for _, ref := range seeds {
			if err := s.checkSuccessors(ctx, next, s.flows.Node(ref)); err != nil {
				return err
			}
		}
	}
	return s.recheckCalls(ctx)
}

// seed makes ref a start node of run with a permanent support, without
// re-running its behavior.
func (s *Session) seed(ctx context.Context, run *Run, ref flow.NodeRef) {
	s.addStart(run, ref)
	s.pushSupport(run, ref, ValidSupport{Reason: "snapshot"})
	s.markActive(run, ref)
	n := s.flows.Node(ref)
	s.nodeEvent(ctx, domain.EventNodeActivated, run, n, "seeded")
}

// ancestors returns the active composed calls of run leading into the flows of
// the given checkpoints, innermost first. Calls already snapshotted in this
// cycle or still active in another run are left alone.
func (s *Session) ancestors(run *Run, checkpoints []flow.NodeRef) []flow.NodeRef {
	var out []flow.NodeRef
	visited := make(map[string]bool)
	queue := make([]string, 0, len(checkpoints))
	for _, ref := range checkpoints {
		queue = append(queue, ref.Flow)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		for _, c := range s.activeCallers(run, name) {
			ref := c.Ref()
			if cycle, ok := s.snapshots[ref]; ok && cycle == s.cycle {
				continue
			}
			if s.activeElsewhere(run, ref) {
				continue
			}
			s.markSnapshot(ref)
			out = append(out, ref)
			queue = append(queue, ref.Flow)
		}
	}
	return out
}

func (s *Session) activeElsewhere(run *Run, ref flow.NodeRef) bool {
	for _, r := range s.runs {
		if r != run && r.Active(ref) {
			return true
		}
	}
	return false
}

// recheckCalls re-evaluates the exits of every active composed call, since
// the set of runs and their start nodes changed.
func (s *Session) recheckCalls(ctx context.Context) error {
	for _, r := range append([]*Run(nil), s.runs...) {
		for _, ref := range r.Members() {
			n := s.flows.Node(ref)
			if n.Kind() != flow.KindCall {
				continue
			}
			if err := s.checkSuccessors(ctx, r, n); err != nil {
				return err
			}
		}
	}
	return nil
}
