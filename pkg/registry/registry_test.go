package registry_test

import (
	"errors"
	"testing"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type view map[domain.ObjectID]any

func (v view) Value(id domain.ObjectID) (any, error) {
	if x, ok := v[id]; ok {
		return x, nil
	}
	return nil, domain.ErrNoValue
}

func (view) NodeActive(string, string) bool { return false }

func TestRegistry_Builtins(t *testing.T) {
	r := registry.Default()
	assert.Equal(t, []string{"count", "max", "min", "sum"}, r.Names())

	inputs := []domain.ObjectID{"a", "b", "c"}
	tests := []struct {
		name string
		want any
	}{
		{"sum", 5.0},
		{"min", 2.0},
		{"max", 3.0},
		{"count", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := r.Formula(tt.name, inputs)
			require.NoError(t, err)
			got, err := f(view{"a": 2, "b": 3.0})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	f, err := r.Formula("max", inputs)
	require.NoError(t, err)
	got, err := f(view{})
	require.NoError(t, err)
	assert.Nil(t, got, "nothing known, nothing derived")
}

func TestRegistry_Errors(t *testing.T) {
	r := registry.NewRegistry()
	_, err := r.Formula("missing", nil)
	assert.Error(t, err)

	boom := errors.New("boom")
	r.Register("fail", func([]any) (any, error) { return nil, boom })
	f, err := r.Formula("fail", nil)
	require.NoError(t, err)
	_, err = f(view{})
	assert.ErrorIs(t, err, boom)

	f, err = registry.Default().Formula("sum", []domain.ObjectID{"s"})
	require.NoError(t, err)
	_, err = f(view{"s": "text"})
	assert.Error(t, err)
}
