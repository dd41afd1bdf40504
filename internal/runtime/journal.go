package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// transact runs fn as the outermost fact-application transaction: checkpoints
// are resolved after fn, and any failure replays the journal backwards.
func (s *Session) transact(ctx context.Context, fn func(context.Context) error) error {
	if s.inTx {
		return fn(ctx)
	}
	s.inTx = true
	defer func() {
		s.inTx = false
		s.journal = nil
		s.deferred = nil
		s.muted = 0
		s.depth = 0
	}()

	err := fn(ctx)
	if err == nil {
		err = s.resolve(ctx)
	}
	if err != nil {
		s.rollback(ctx, err)
		return err
	}
	return nil
}

func (s *Session) rollback(ctx context.Context, cause error) {
	s.logger.WarnContext(ctx, "rolling back transaction", "steps", len(s.journal), "error", cause)
	s.rollingBack = true
	for i := len(s.journal) - 1; i >= 0; i-- {
		s.journal[i]()
	}
	s.rollingBack = false
	s.emit(ctx, domain.Event{Type: domain.EventRolledBack, Detail: cause.Error()})
}

// record appends the inverse of a state change to the journal.
func (s *Session) record(undo func()) {
	if s.inTx && !s.rollingBack {
		s.journal = append(s.journal, undo)
	}
}

// enter guards nested propagation against runaway recursion.
func (s *Session) enter() error {
	s.depth++
	if s.depth > s.engine.maxDepth {
		s.depth--
		return &domain.DepthError{Limit: s.engine.maxDepth}
	}
	return nil
}

func (s *Session) leave() { s.depth-- }

func (s *Session) writeFact(ctx context.Context, id domain.ObjectID, value any, src domain.Source) (bool, error) {
	if err := s.journalFacts(ctx, id); err != nil {
		return false, err
	}
	changed, err := s.board.Set(ctx, id, value, src)
	if err != nil {
		return false, fmt.Errorf("set fact %s: %w", id, err)
	}
	return changed, nil
}

func (s *Session) retractFact(ctx context.Context, id domain.ObjectID, src domain.Source) (bool, error) {
	_, had, err := s.board.Fact(ctx, id, src)
	if err != nil {
		return false, fmt.Errorf("read fact %s: %w", id, err)
	}
	if !had {
		return false, nil
	}
	if err := s.journalFacts(ctx, id); err != nil {
		return false, err
	}
	changed, err := s.board.Retract(ctx, id, src)
	if err != nil {
		return false, fmt.Errorf("retract fact %s: %w", id, err)
	}
	return changed, nil
}

// journalFacts records every fact of an object, in recency order, so a
// rollback restores the merged value and not just the changed source.
func (s *Session) journalFacts(ctx context.Context, id domain.ObjectID) error {
	if !s.inTx || s.rollingBack {
		return nil
	}
	prev, err := s.board.Facts(ctx, id)
	if err != nil {
		return fmt.Errorf("read facts %s: %w", id, err)
	}
	s.record(func() {
		if err := s.board.Restore(ctx, id, prev); err != nil {
			s.logger.ErrorContext(ctx, "failed to restore facts during rollback", "object", id, "error", err)
		}
	})
	return nil
}

func (s *Session) pushSupport(run *Run, ref flow.NodeRef, sup Support) bool {
	d := run.data(ref)
	if !d.Add(sup) {
		return false
	}
	s.record(func() { d.Remove(sup.Key()) })
	return true
}

func (s *Session) popSupport(run *Run, ref flow.NodeRef, key string) (Support, bool) {
	d := run.Data(ref)
	if d == nil {
		return nil, false
	}
	sup, i, ok := d.Remove(key)
	if !ok {
		return nil, false
	}
	s.record(func() { d.insert(i, sup) })
	return sup, true
}

func (s *Session) markActive(run *Run, ref flow.NodeRef) {
	run.order = append(run.order, ref)
	s.record(func() { run.order = run.order[:len(run.order)-1] })
}

func (s *Session) markInactive(run *Run, ref flow.NodeRef) {
	for i, m := range run.order {
		if m != ref {
			continue
		}
		run.order = append(run.order[:i], run.order[i+1:]...)
		s.record(func() {
			run.order = append(run.order, flow.NodeRef{})
			copy(run.order[i+1:], run.order[i:])
			run.order[i] = ref
		})
		return
	}
}

func (s *Session) setFired(run *Run, ref flow.EdgeRef, on bool) {
	prev := run.fired[ref]
	if on {
		run.fired[ref] = true
	} else {
		delete(run.fired, ref)
	}
	s.record(func() {
		if prev {
			run.fired[ref] = true
		} else {
			delete(run.fired, ref)
		}
	})
}

func (s *Session) addRun(run *Run) {
	s.runs = append(s.runs, run)
	s.record(func() { s.runs = s.runs[:len(s.runs)-1] })
}

func (s *Session) removeRun(run *Run) {
	for i, r := range s.runs {
		if r != run {
			continue
		}
		s.runs = append(s.runs[:i], s.runs[i+1:]...)
		s.record(func() {
			s.runs = append(s.runs, nil)
			copy(s.runs[i+1:], s.runs[i:])
			s.runs[i] = run
		})
		return
	}
}

func (s *Session) addStart(run *Run, ref flow.NodeRef) {
	if run.IsStart(ref) {
		return
	}
	run.starts = append(run.starts, ref)
	s.record(func() { run.starts = run.starts[:len(run.starts)-1] })
}

func (s *Session) register(p pending) bool {
	for _, q := range s.pending {
		if q.run == p.run && q.node == p.node {
			return false
		}
	}
	s.pending = append(s.pending, p)
	s.record(func() { s.pending = s.pending[:len(s.pending)-1] })
	return true
}

func (s *Session) unregister(run *Run, ref flow.NodeRef) bool {
	for i, q := range s.pending {
		if q.run != run || q.node != ref {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.record(func() {
			s.pending = append(s.pending, pending{})
			copy(s.pending[i+1:], s.pending[i:])
			s.pending[i] = q
		})
		return true
	}
	return false
}

func (s *Session) drainPending() []pending {
	batch := s.pending
	s.pending = nil
	s.record(func() { s.pending = batch })
	return batch
}

func (s *Session) markSnapshot(ref flow.NodeRef) {
	prev, had := s.snapshots[ref]
	s.snapshots[ref] = s.cycle
	s.record(func() {
		if had {
			s.snapshots[ref] = prev
		} else {
			delete(s.snapshots, ref)
		}
	})
}
