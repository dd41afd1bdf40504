package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_CycleStabilizes(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("Loop")
	f.Add("start").Start().Go("A")
	f.Add("A").Do(action.Set("a", true)).When(cond.Less("counter", 3), "B")
	f.Add("B").Do(action.Set("b", true)).When(cond.Less("counter", 3), "A")

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "Loop", "start"))
	assert.False(t, h.session.IsActive("Loop", "B"), "guard without value is not satisfied")

	for i := 0; i <= 3; i++ {
		require.NoError(t, h.session.Set(ctx, "counter", i))
		if i < 3 {
			assert.True(t, h.session.IsActive("Loop", "B"))
		}
	}

	assert.True(t, h.session.IsActive("Loop", "A"))
	assert.False(t, h.session.IsActive("Loop", "B"))
	h.missing(t, "b")
	for _, supports := range h.session.Supports("Loop", "A") {
		assert.Equal(t, []string{"edge:Loop#0"}, supports)
	}
}

func TestEngine_ComposedCallExclusivity(t *testing.T) {
	ctx := context.Background()
	sub := dsl.New("S")
	sub.Add("start").Start().Go("work")
	sub.Add("work").Do(action.Set("w", 1)).Go("end")
	sub.Add("end").End()

	caller := func(name string, trigger, result domain.ObjectID) *dsl.Builder {
		b := dsl.New(name)
		b.Add("start").Start().When(cond.Equal(trigger, true), "call")
		b.Add("call").Call("S", "start").Exit("end", "after")
		b.Add("after").Do(action.Set(result, true))
		return b
	}

	h := newHarness(t, []*dsl.Builder{sub, caller("M1", "go1", "done1"), caller("M2", "go2", "done2")})
	require.NoError(t, h.engine.Flows().Check())
	require.NoError(t, h.session.Start(ctx, "M1", "start"))
	require.NoError(t, h.session.Start(ctx, "M2", "start"))

	require.NoError(t, h.session.Set(ctx, "go1", true))
	assert.True(t, h.session.IsActive("M1", "call"))
	assert.True(t, h.session.IsActive("S", "start"))
	assert.Equal(t, true, h.value(t, "done1"))
	assert.Len(t, h.session.ActiveRuns("S"), 1)

	require.NoError(t, h.session.Set(ctx, "go2", true))
	assert.False(t, h.session.IsActive("M2", "call"), "S is already running on behalf of M1")
	h.missing(t, "done2")

	require.NoError(t, h.session.Set(ctx, "go1", false))
	assert.False(t, h.session.IsActive("M1", "call"))
	h.missing(t, "done1")
	assert.True(t, h.session.IsActive("M2", "call"), "M2 enters S once it is released")
	assert.Equal(t, true, h.value(t, "done2"))
	assert.EqualValues(t, 1, h.value(t, "w"))
}

func TestEngine_CallBlockedByDirectStart(t *testing.T) {
	ctx := context.Background()
	sub := dsl.New("S")
	sub.Add("start").Start().Go("work")
	sub.Add("work").Do(action.Set("w", 1))

	m := dsl.New("M")
	m.Add("start").Start().Go("call")
	m.Add("call").Call("S", "start")

	h := newHarness(t, []*dsl.Builder{sub, m})
	require.NoError(t, h.session.Start(ctx, "S", "start"))
	require.NoError(t, h.session.Start(ctx, "M", "start"))

	assert.True(t, h.session.IsActive("M", "start"))
	assert.False(t, h.session.IsActive("M", "call"))
}

func TestEngine_UnresolvableCall(t *testing.T) {
	ctx := context.Background()
	m := dsl.New("M")
	m.Add("start").Start().Go("call")
	m.Add("call").Call("Ghost", "")

	h := newHarness(t, []*dsl.Builder{m})
	err := h.session.Start(ctx, "M", "start")

	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Ghost", cerr.Flow)
	assert.Empty(t, h.session.Runs(), "the failed start is rolled back")
}

func TestEngine_ActionFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")
	f := dsl.New("F")
	f.Add("start").Start().When(cond.Equal("go", true), "A")
	f.Add("A").Do(action.Set("X", 1)).Go("B")
	f.Add("B").Do(action.Func{DoFunc: func(context.Context, domain.Effects, domain.Source) error { return errBoom }})

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))

	err := h.session.Set(ctx, "go", true)
	require.ErrorIs(t, err, errBoom)
	var aerr *domain.ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "B", aerr.Node)

	h.missing(t, "X")
	h.missing(t, "go")
	assert.False(t, h.session.IsActive("F", "A"))
	assert.False(t, h.session.IsActive("F", "B"))
	assert.True(t, h.session.IsActive("F", "start"))
	for _, supports := range h.session.Supports("F", "A") {
		assert.Empty(t, supports)
	}
	assert.Len(t, h.events.Events(domain.EventRolledBack), 1)

	require.NoError(t, h.session.Set(ctx, "unrelated", 1), "the session stays usable")
}

func TestEngine_DepthLimit(t *testing.T) {
	ctx := context.Background()
	b := dsl.New("Chain")
	b.Add("start").Start().Go("n0")
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9", "n10", "n11"}
	for i, name := range names[:len(names)-1] {
		b.Add(name).Do(action.Set(domain.ObjectID(name), i)).Go(names[i+1])
	}
	b.Add(names[len(names)-1]).End()

	h := newHarness(t, []*dsl.Builder{b}, runtime.WithMaxDepth(6))
	err := h.session.Start(ctx, "Chain", "start")

	var derr *domain.DepthError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 6, derr.Limit)
	assert.Empty(t, h.session.Runs())
	h.missing(t, "n0")
}

func TestEngine_IdempotentFactDelivery(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("F")
	f.Add("start").Start().When(cond.Equal("x", 1), "A")
	f.Add("A").Do(action.Set("y", 2))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	require.NoError(t, h.session.Set(ctx, "x", 1))

	before := h.session.Supports("F", "A")
	added := len(h.events.Events(domain.EventSupportAdded))

	require.NoError(t, h.session.OnFactChanged(ctx, "x"))
	require.NoError(t, h.session.OnFactChanged(ctx, "x"))
	require.NoError(t, h.session.Set(ctx, "x", 1))

	assert.Equal(t, before, h.session.Supports("F", "A"))
	assert.Len(t, h.events.Events(domain.EventSupportAdded), added)
	assert.Equal(t, []domain.ObjectID{"x"}, h.session.DerivationSources("y"))
}

func TestEngine_ActivationRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("F")
	f.Add("start").Start().When(cond.Equal("x", 1), "A")
	f.Add("A").Do(action.Set("y", 2)).Go("B")
	f.Add("B").Do(action.Set("z", 3))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	baseline := h.board.Snapshot()

	require.NoError(t, h.session.Set(ctx, "x", 1))
	assert.EqualValues(t, 3, h.value(t, "z"))

	require.NoError(t, h.session.Retract(ctx, "x"))
	assert.Equal(t, baseline, h.board.Snapshot())
	assert.Equal(t, []string{"start"}, h.session.ActiveNodes("F"))
}

func TestEngine_HookedNodeRefreshes(t *testing.T) {
	ctx := context.Background()
	double := func(v domain.View) (any, error) {
		x, err := v.Value("x")
		if errors.Is(err, domain.ErrNoValue) {
			return 0.0, nil
		}
		if err != nil {
			return nil, err
		}
		n, _ := cond.Number(x)
		return n * 2, nil
	}
	f := dsl.New("F")
	f.Add("start").Start().Go("D")
	f.Add("D").Do(action.Derive("double", double, "x"))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	assert.EqualValues(t, 0, h.value(t, "double"))

	require.NoError(t, h.session.Set(ctx, "x", 3))
	assert.EqualValues(t, 6, h.value(t, "double"))

	require.NoError(t, h.session.Retract(ctx, "x"))
	assert.EqualValues(t, 0, h.value(t, "double"))
}

func TestEngine_RepeatedActionReactivates(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("F")
	f.Add("start").Start().Go("ask").When(cond.Equal("again", true), "ask")
	f.Add("ask").Do(action.Indicate("question"))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	require.NoError(t, h.session.Set(ctx, "again", true))

	var asks []domain.Event
	for _, ev := range h.events.Events(domain.EventNodeActivated) {
		if ev.Node == "ask" {
			asks = append(asks, ev)
		}
	}
	require.Len(t, asks, 2)
	assert.Equal(t, "repeated", asks[1].Detail)
	assert.Equal(t, true, h.value(t, "question"))
}

func TestSession_InitAndCancel(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("Auto").Autostart()
	f.Add("start").Start().Go("A")
	f.Add("A").Do(action.Set("a", 1))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Init(ctx))
	assert.True(t, h.session.IsActive("Auto", "A"))
	require.NoError(t, h.session.Init(ctx), "starting an active start node is a no-op")
	assert.Len(t, h.session.Runs(), 1)

	h.session.Cancel(ctx)
	assert.False(t, h.session.IsActive("Auto", "A"))
	assert.ErrorIs(t, h.session.Set(ctx, "a", 2), domain.ErrSessionClosed)
	assert.Len(t, h.events.Events(domain.EventRunClosed), 1)
}

func TestEngine_RollbackKeepsFactRecency(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")
	f := dsl.New("F")
	f.Add("start").Start().When(cond.Known("trigger"), "A").When(cond.Equal("boom", true), "B")
	f.Add("A").Do(action.Set("X", 2))
	f.Add("B").Do(action.Func{DoFunc: func(context.Context, domain.Effects, domain.Source) error { return errBoom }})

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	require.NoError(t, h.session.Set(ctx, "X", 1))
	require.NoError(t, h.session.Set(ctx, "trigger", true))
	assert.EqualValues(t, 2, h.value(t, "X"), "the node fact is the most recent")

	err := h.session.Apply(ctx, func(ctx context.Context, tx *runtime.Tx) error {
		if err := tx.Set(ctx, "X", 3); err != nil {
			return err
		}
		return tx.Set(ctx, "boom", true)
	})
	require.ErrorIs(t, err, errBoom)

	assert.EqualValues(t, 2, h.value(t, "X"), "rollback keeps the node fact on top")
	user, ok, err := h.board.Fact(ctx, "X", domain.User())
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, user)
	h.missing(t, "boom")
	assert.True(t, h.session.IsActive("F", "A"))
}

func TestEngine_IdempotentHookedDelivery(t *testing.T) {
	ctx := context.Background()
	double := func(v domain.View) (any, error) {
		x, err := v.Value("x")
		if errors.Is(err, domain.ErrNoValue) {
			return 0.0, nil
		}
		if err != nil {
			return nil, err
		}
		n, _ := cond.Number(x)
		return n * 2, nil
	}
	f := dsl.New("F")
	f.Add("start").Start().Go("D")
	f.Add("D").Do(action.Derive("y", double, "x")).When(cond.Equal("y", 2), "E")
	f.Add("E").Do(action.Set("z", true))

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	require.NoError(t, h.session.Set(ctx, "x", 1))
	require.True(t, h.session.IsActive("F", "E"))

	transitions := len(h.events.Events(domain.EventNodeActivated, domain.EventNodeDeactivated))

	require.NoError(t, h.session.OnFactChanged(ctx, "x"))
	require.NoError(t, h.session.OnFactChanged(ctx, "x"))
	require.NoError(t, h.session.Set(ctx, "x", 1))

	assert.Len(t, h.events.Events(domain.EventNodeActivated, domain.EventNodeDeactivated), transitions)
	assert.True(t, h.session.IsActive("F", "E"))
	assert.Equal(t, true, h.value(t, "z"))
}

func TestEngine_UnanchoredCycleRetracts(t *testing.T) {
	ctx := context.Background()
	f := dsl.New("F")
	f.Add("start").Start().When(cond.Equal("x", 1), "A")
	f.Add("A").Do(action.Set("y", 1)).Go("B")
	f.Add("B").Do(action.Set("z", 1)).Go("A")

	h := newHarness(t, []*dsl.Builder{f})
	require.NoError(t, h.session.Start(ctx, "F", "start"))
	baseline := h.board.Snapshot()

	require.NoError(t, h.session.Set(ctx, "x", 1))
	assert.True(t, h.session.IsActive("F", "A"))
	assert.True(t, h.session.IsActive("F", "B"))

	require.NoError(t, h.session.Retract(ctx, "x"))
	assert.False(t, h.session.IsActive("F", "A"), "the cycle alone does not keep A")
	assert.False(t, h.session.IsActive("F", "B"))
	h.missing(t, "y")
	h.missing(t, "z")
	assert.Equal(t, baseline, h.board.Snapshot())
}
