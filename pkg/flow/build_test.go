package flow_test

import (
	"testing"

	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear() ([]flow.NodeSpec, []flow.EdgeSpec) {
	return []flow.NodeSpec{
			{ID: "start", Kind: flow.KindStart},
			{ID: "a", Name: "Set A", Kind: flow.KindAction, Action: action.Set("a", 1)},
			{ID: "end", Kind: flow.KindEnd},
		}, []flow.EdgeSpec{
			{From: "start", To: "a"},
			{From: "a", To: "end", Guard: cond.Equal("q", "yes")},
		}
}

func TestBuild_Valid(t *testing.T) {
	nodes, edges := linear()
	f, err := flow.Build("f1", "Linear", nodes, edges, flow.WithOrigin("test"))
	require.NoError(t, err)

	assert.Equal(t, "f1", f.ID())
	assert.Equal(t, "Linear", f.Name())
	assert.Equal(t, "test", f.Origin())

	a, ok := f.Find("set a")
	require.True(t, ok, "lookup by name is case-insensitive")
	assert.Equal(t, "a", a.ID())
	assert.Equal(t, "Linear", a.Flow())
	assert.Len(t, a.Incoming(), 1)
	assert.Len(t, a.Outgoing(), 1)

	assert.Equal(t, flow.Always, f.Edge(0).Guard(), "unguarded edges are always true")
	assert.Equal(t, "start", f.Source(f.Edge(0)).ID())
	assert.Equal(t, "end", f.Target(f.Edge(1)).ID())
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		nodes []flow.NodeSpec
		edges []flow.EdgeSpec
	}{
		{
			name:  "dangling edge",
			nodes: []flow.NodeSpec{{ID: "start", Kind: flow.KindStart}},
			edges: []flow.EdgeSpec{{From: "start", To: "nowhere"}},
		},
		{
			name: "edge into start",
			nodes: []flow.NodeSpec{
				{ID: "start", Kind: flow.KindStart},
				{ID: "a", Kind: flow.KindAction, Action: action.Set("a", 1)},
			},
			edges: []flow.EdgeSpec{{From: "a", To: "start"}},
		},
		{
			name: "edge out of end",
			nodes: []flow.NodeSpec{
				{ID: "end", Kind: flow.KindEnd},
				{ID: "a", Kind: flow.KindAction, Action: action.Set("a", 1)},
			},
			edges: []flow.EdgeSpec{{From: "end", To: "a"}},
		},
		{
			name:  "duplicate node",
			nodes: []flow.NodeSpec{{ID: "start", Kind: flow.KindStart}, {ID: "start", Kind: flow.KindEnd}},
		},
		{
			name:  "action without payload",
			nodes: []flow.NodeSpec{{ID: "a", Kind: flow.KindAction}},
		},
		{
			name:  "call without target",
			nodes: []flow.NodeSpec{{ID: "c", Kind: flow.KindCall}},
		},
		{
			name:  "invalid kind",
			nodes: []flow.NodeSpec{{ID: "x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.Build("f", "F", tt.nodes, tt.edges)
			require.Error(t, err)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, "F", verr.Flow)
		})
	}
}

func TestBuild_AggregatesErrors(t *testing.T) {
	_, err := flow.Build("f", "F",
		[]flow.NodeSpec{{ID: "start", Kind: flow.KindStart}},
		[]flow.EdgeSpec{{From: "start", To: "x"}, {From: "y", To: "start"}},
	)
	var agg *domain.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
}

func TestBuild_CallDefaultsToStart(t *testing.T) {
	f, err := flow.Build("f", "F", []flow.NodeSpec{{ID: "c", Kind: flow.KindCall, CallFlow: "Sub"}}, nil)
	require.NoError(t, err)
	callee, start := f.Node(0).Call()
	assert.Equal(t, "Sub", callee)
	assert.Equal(t, flow.DefaultStart, start)
}

func TestParseKind(t *testing.T) {
	k, err := flow.ParseKind("Composed_Call")
	require.NoError(t, err)
	assert.Equal(t, flow.KindCall, k)
	assert.Equal(t, "checkpoint", flow.KindCheckpoint.String())

	_, err = flow.ParseKind("question")
	assert.Error(t, err)
}

func TestNode_Repeated(t *testing.T) {
	f, err := flow.Build("f", "F", []flow.NodeSpec{
		{ID: "k", Kind: flow.KindCheckpoint},
		{ID: "ask", Kind: flow.KindAction, Action: action.Indicate("q")},
		{ID: "set", Kind: flow.KindAction, Action: action.Set("q", 1)},
	}, nil)
	require.NoError(t, err)
	assert.True(t, f.Node(0).Repeated())
	assert.True(t, f.Node(1).Repeated())
	assert.False(t, f.Node(2).Repeated())
}
