package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/adapters/memory"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/dsl"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine  *runtime.Engine
	session *runtime.Session
	board   *memory.Blackboard
	events  *memory.Recorder
}

func newHarness(t *testing.T, builders []*dsl.Builder, opts ...runtime.Option) *harness {
	t.Helper()
	set := flow.NewSet()
	for _, b := range builders {
		f, err := b.Build()
		require.NoError(t, err)
		require.NoError(t, set.Register(f))
	}

	rec := memory.NewRecorder()
	engine := runtime.NewEngine(set, append([]runtime.Option{runtime.WithEventSink(rec)}, opts...)...)
	board := memory.NewBlackboard()
	return &harness{
		engine:  engine,
		session: engine.NewSession("test", board),
		board:   board,
		events:  rec,
	}
}

func (h *harness) value(t *testing.T, id domain.ObjectID) any {
	t.Helper()
	v, err := h.board.Value(context.Background(), id)
	require.NoError(t, err, "object %s has no value", id)
	return v
}

func (h *harness) missing(t *testing.T, id domain.ObjectID) {
	t.Helper()
	_, err := h.board.Value(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrNoValue, "object %s should have no value", id)
}
