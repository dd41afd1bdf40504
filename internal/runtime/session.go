package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/ports"
)

type pending struct {
	run  *Run
	node flow.NodeRef
	end  bool
}

// Session owns the mutable state of one case: its runs, pending checkpoints
// and the fact store. Public methods serialize on the session; calls are
// synchronous and complete all propagation before returning.
type Session struct {
	id     string
	engine *Engine
	flows  *flow.Set
	board  ports.Blackboard
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	runs      []*Run
	pending   []pending
	cycle     uint64
	snapshots map[flow.NodeRef]uint64

	// transaction state
	inTx        bool
	journal     []func()
	rollingBack bool
	depth       int
	muted       int
	deferred    []domain.ObjectID
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Board returns the session's fact store.
func (s *Session) Board() ports.Blackboard { return s.board }

// Tx is the handle given to Apply. Its operations join the enclosing transaction.
type Tx struct {
	s *Session
}

// Set enters a user fact.
func (tx *Tx) Set(ctx context.Context, id domain.ObjectID, value any) error {
	return tx.s.set(ctx, id, value, domain.User())
}

// Retract removes a user fact.
func (tx *Tx) Retract(ctx context.Context, id domain.ObjectID) error {
	return tx.s.retract(ctx, id, domain.User())
}

// OnFactChanged propagates a change already applied to the fact store.
func (tx *Tx) OnFactChanged(ctx context.Context, id domain.ObjectID) error {
	return tx.s.propagate(ctx, id)
}

// Start enters a flow at a Start node in a new run.
func (tx *Tx) Start(ctx context.Context, flowName, start string) error {
	return tx.s.start(ctx, flowName, start)
}

// Apply runs fn as one fact-application transaction. Checkpoints are resolved
// once fn returns. If fn or resolution fails, every support, run and fact
// change made by the transaction is rolled back and the error is returned.
func (s *Session) Apply(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.transact(ctx, func(ctx context.Context) error {
		return fn(ctx, &Tx{s: s})
	})
}

// Set enters a user fact and propagates it.
func (s *Session) Set(ctx context.Context, id domain.ObjectID, value any) error {
	return s.Apply(ctx, func(ctx context.Context, tx *Tx) error { return tx.Set(ctx, id, value) })
}

// Retract removes a user fact and propagates the change.
func (s *Session) Retract(ctx context.Context, id domain.ObjectID) error {
	return s.Apply(ctx, func(ctx context.Context, tx *Tx) error { return tx.Retract(ctx, id) })
}

// OnFactChanged is the reactive entry point for stores that write facts themselves.
func (s *Session) OnFactChanged(ctx context.Context, id domain.ObjectID) error {
	return s.Apply(ctx, func(ctx context.Context, tx *Tx) error { return tx.OnFactChanged(ctx, id) })
}

// Start enters a flow at a Start node in a new run.
func (s *Session) Start(ctx context.Context, flowName, start string) error {
	return s.Apply(ctx, func(ctx context.Context, tx *Tx) error { return tx.Start(ctx, flowName, start) })
}

// Init starts every autostart flow.
func (s *Session) Init(ctx context.Context) error {
	return s.Apply(ctx, func(ctx context.Context, tx *Tx) error {
		for _, ref := range s.flows.Autostart() {
			n := s.flows.Node(ref)
			if err := tx.Start(ctx, n.Flow(), n.ID()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cancel releases all per-session state. Later calls return domain.ErrSessionClosed.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, r := range s.runs {
		s.emit(ctx, domain.Event{Type: domain.EventRunClosed, Run: r.id, Detail: "cancelled"})
	}
	s.closed = true
	s.runs = nil
	s.pending = nil
	s.snapshots = make(map[flow.NodeRef]uint64)
}

func (s *Session) set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) error {
	changed, err := s.writeFact(ctx, id, value, src)
	if err != nil || !changed {
		return err
	}
	return s.propagate(ctx, id)
}

func (s *Session) retract(ctx context.Context, id domain.ObjectID, src domain.Source) error {
	changed, err := s.retractFact(ctx, id, src)
	if err != nil || !changed {
		return err
	}
	return s.propagate(ctx, id)
}

func (s *Session) start(ctx context.Context, flowName, start string) error {
	ref, err := s.flows.ResolveStart(flowName, start)
	if err != nil {
		return err
	}
	if s.activeAnywhere(ref) {
		s.logger.DebugContext(ctx, "start node already active", "flow", flowName, "node", start)
		return nil
	}
	run := newRun()
	s.addRun(run)
	s.addStart(run, ref)
	s.emit(ctx, domain.Event{Type: domain.EventRunStarted, Run: run.id, Flow: ref.Flow, Node: s.flows.Node(ref).ID()})
	return s.addSupport(ctx, run, ref, ValidSupport{Reason: "start"})
}

func (s *Session) activeAnywhere(ref flow.NodeRef) bool {
	for _, r := range s.runs {
		if r.Active(ref) {
			return true
		}
	}
	return false
}

func (s *Session) nodeActive(flowName, node string) bool {
	ref, ok := s.flows.Lookup(flowName, node)
	return ok && s.activeAnywhere(ref)
}

func (s *Session) hasRun(run *Run) bool {
	for _, r := range s.runs {
		if r == run {
			return true
		}
	}
	return false
}

// runsWhere returns the runs in which ref is currently active.
func (s *Session) runsWhere(ref flow.NodeRef) []*Run {
	var out []*Run
	for _, r := range s.runs {
		if r.Active(ref) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Session) emit(ctx context.Context, ev domain.Event) {
	ev.Time = time.Now()
	ev.Session = s.id
	s.engine.sink.Emit(ctx, ev)
}

func (s *Session) nodeEvent(ctx context.Context, typ domain.EventType, run *Run, n *flow.Node, detail string) {
	s.emit(ctx, domain.Event{Type: typ, Run: run.id, Flow: n.Flow(), Node: n.ID(), Kind: n.Kind().String(), Detail: detail})
}

// effects is the View and Effects surface handed to guards and actions.
type effects struct {
	s   *Session
	ctx context.Context
}

func (s *Session) view(ctx context.Context) effects { return effects{s: s, ctx: ctx} }

func (fx effects) Value(id domain.ObjectID) (any, error) { return fx.s.board.Value(fx.ctx, id) }

func (fx effects) NodeActive(flowName, node string) bool { return fx.s.nodeActive(flowName, node) }

func (fx effects) Set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) error {
	return fx.s.set(ctx, id, value, src)
}

func (fx effects) Retract(ctx context.Context, id domain.ObjectID, src domain.Source) error {
	return fx.s.retract(ctx, id, src)
}

func (s *Session) String() string { return fmt.Sprintf("session %s (%d runs)", s.id, len(s.runs)) }
