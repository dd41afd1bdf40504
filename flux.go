package flux

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/adapters/memory"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/aretw0/flux/pkg/runner"
)

type (
	// Session is the mutable activation state of one case.
	Session = runtime.Session
	// RunInfo describes a flow run of a session.
	RunInfo = runtime.RunInfo
	// Flow is an immutable flow graph.
	Flow = flow.Flow
	// ObjectID names a fact object.
	ObjectID = domain.ObjectID
	// Event is a trace record emitted during propagation.
	Event = domain.Event
	// EventSink receives trace events.
	EventSink = domain.EventSink
)

// Engine is the high-level entry point of the library. It owns the flow
// registry and creates sessions over it.
type Engine struct {
	flows       *flow.Set
	runtime     *runtime.Engine
	logger      *slog.Logger
	sink        domain.EventSink
	maxDepth    int
	terminology []domain.ObjectID
	completion  bool
	initial     []*flow.Flow
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventSink receives every trace event of every session.
func WithEventSink(sink domain.EventSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithMaxDepth bounds nested propagation (default runtime.DefaultMaxDepth).
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithTerminology rejects flows whose guards or actions reference objects
// outside ids.
func WithTerminology(ids ...domain.ObjectID) Option {
	return func(e *Engine) {
		e.terminology = append(e.terminology, ids...)
	}
}

// WithRootCompletion controls whether reaching an End node closes a root run.
// Enabled by default.
func WithRootCompletion(on bool) Option {
	return func(e *Engine) {
		e.completion = on
	}
}

// WithFlows registers flows at construction.
func WithFlows(flows ...*flow.Flow) Option {
	return func(e *Engine) {
		e.initial = append(e.initial, flows...)
	}
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{completion: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	var setOpts []flow.SetOption
	if len(e.terminology) > 0 {
		setOpts = append(setOpts, flow.WithTerminology(e.terminology...))
	}
	e.flows = flow.NewSet(setOpts...)
	for _, f := range e.initial {
		if err := e.RegisterFlow(f); err != nil {
			return nil, err
		}
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithRootCompletion(e.completion),
	}
	if e.sink != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithEventSink(e.sink))
	}
	if e.maxDepth > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxDepth(e.maxDepth))
	}
	e.runtime = runtime.NewEngine(e.flows, runtimeOpts...)
	return e, nil
}

// RegisterFlow adds a flow. Flows must be registered before sessions start
// reasoning over them.
func (e *Engine) RegisterFlow(f *flow.Flow) error {
	if err := e.flows.Register(f); err != nil {
		return fmt.Errorf("failed to register flow: %w", err)
	}
	e.logger.Debug("flow registered", "flow", f.Name(), "nodes", f.NodeCount(), "edges", f.EdgeCount())
	return nil
}

// Validate checks that every composed call resolves to a registered Start node.
func (e *Engine) Validate() error {
	return e.flows.Check()
}

// Flows returns the flow registry.
func (e *Engine) Flows() *flow.Set { return e.flows }

// Runtime returns the underlying runtime engine, for session managers.
func (e *Engine) Runtime() *runtime.Engine { return e.runtime }

// NewSession creates a session. A nil board selects an in-memory blackboard.
// The session is not initialized; call Init to enter autostart flows.
func (e *Engine) NewSession(id string, board ports.Blackboard) *Session {
	if board == nil {
		board = memory.NewBlackboard()
	}
	return e.runtime.NewSession(id, board)
}

// Run replays a script against a fresh in-memory session.
func (e *Engine) Run(ctx context.Context, id string, script runner.Script, opts ...runner.Option) (runner.Summary, error) {
	s := e.NewSession(id, nil)
	defer s.Cancel(ctx)
	return runner.New(append([]runner.Option{runner.WithLogger(e.logger)}, opts...)...).Run(ctx, s, script)
}
