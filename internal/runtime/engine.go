package runtime

import (
	"log/slog"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/ports"
)

// DefaultMaxDepth bounds nested propagation when no limit is configured.
const DefaultMaxDepth = 1000

// Engine propagates fact changes through the registered flows.
// It holds no per-session state and is safe for concurrent use by many sessions.
type Engine struct {
	flows          *flow.Set
	logger         *slog.Logger
	sink           domain.EventSink
	maxDepth       int
	rootCompletion bool
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventSink sets the trace sink.
func WithEventSink(sink domain.EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithMaxDepth caps nested propagation. Exceeding it aborts the transaction with a *domain.DepthError.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithRootCompletion controls whether reaching an End node of a root run closes the run
// at the end of the cycle, keeping its conclusions.
func WithRootCompletion(on bool) Option {
	return func(e *Engine) { e.rootCompletion = on }
}

// NewEngine creates an engine over a flow registry.
func NewEngine(flows *flow.Set, opts ...Option) *Engine {
	e := &Engine{
		flows:          flows,
		logger:         logging.NewNop(),
		sink:           domain.NopSink{},
		maxDepth:       DefaultMaxDepth,
		rootCompletion: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Flows returns the registry the engine propagates through.
func (e *Engine) Flows() *flow.Set { return e.flows }

// NewSession creates the mutable state of one case, backed by the given fact store.
func (e *Engine) NewSession(id string, board ports.Blackboard) *Session {
	return &Session{
		id:        id,
		engine:    e,
		flows:     e.flows,
		board:     board,
		logger:    e.logger.With("session", id),
		runs:      nil,
		snapshots: make(map[flow.NodeRef]uint64),
	}
}
