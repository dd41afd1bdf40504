package cond_test

import (
	"testing"

	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type view struct {
	values map[domain.ObjectID]any
	active map[string]bool
}

func (v view) Value(id domain.ObjectID) (any, error) {
	val, ok := v.values[id]
	if !ok {
		return nil, domain.ErrNoValue
	}
	return val, nil
}

func (v view) NodeActive(flow, node string) bool { return v.active[flow+"/"+node] }

func TestConditions(t *testing.T) {
	v := view{
		values: map[domain.ObjectID]any{"n": 2, "s": "yes", "f": 2.5},
		active: map[string]bool{"Sub/end": true},
	}

	tests := []struct {
		name string
		c    domain.Condition
		want bool
	}{
		{"true", cond.True(), true},
		{"equal int", cond.Equal("n", 2), true},
		{"equal across numeric kinds", cond.Equal("n", 2.0), true},
		{"equal string", cond.Equal("s", "no"), false},
		{"less", cond.Less("f", 3), true},
		{"greater", cond.Greater("n", 2), false},
		{"known", cond.Known("s"), true},
		{"unknown object", cond.Known("missing"), false},
		{"not", cond.Not(cond.Equal("s", "yes")), false},
		{"and", cond.And(cond.Equal("s", "yes"), cond.Less("n", 5)), true},
		{"or short circuits errors", cond.Or(cond.Equal("missing", 1), cond.Equal("n", 2)), true},
		{"node active", cond.NodeActive("Sub", "end"), true},
		{"node inactive", cond.NodeActive("Sub", "start"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.c.Eval(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditions_Errors(t *testing.T) {
	v := view{values: map[domain.ObjectID]any{"s": "text"}}

	_, err := cond.Equal("missing", 1).Eval(v)
	assert.ErrorIs(t, err, domain.ErrNoValue)

	_, err = cond.And(cond.True(), cond.Less("missing", 1)).Eval(v)
	assert.ErrorIs(t, err, domain.ErrNoValue)

	_, err = cond.Or(cond.Equal("missing", 1), cond.Equal("other", 1)).Eval(v)
	assert.ErrorIs(t, err, domain.ErrNoValue)

	_, err = cond.Less("s", 1).Eval(v)
	assert.Error(t, err, "non-numeric values cannot be ordered")
}

func TestConditions_Objects(t *testing.T) {
	c := cond.Or(cond.Equal("a", 1), cond.Not(cond.Known("b")), cond.Less("a", 3))
	assert.Equal(t, []domain.ObjectID{"a", "b"}, c.Objects())
	assert.Empty(t, cond.True().Objects())
	assert.Equal(t, "(a = 1 or not(known(b)) or a < 3)", c.(interface{ String() string }).String())
}
