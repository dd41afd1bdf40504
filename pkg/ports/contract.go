package ports

import (
	"context"
	"testing"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlackboardContract runs a suite of tests to verify that a Blackboard implementation
// adheres to the defined interface contract. newBoard must return an empty board.
func RunBlackboardContract(t *testing.T, newBoard func() Blackboard) {
	ctx := context.Background()
	user := domain.User()
	node := domain.FromNode("main", "derive")
	snap := domain.FromCheckpoint("main", "cp")

	t.Run("Missing Value", func(t *testing.T) {
		b := newBoard()
		_, err := b.Value(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrNoValue)
	})

	t.Run("Set and Value", func(t *testing.T) {
		b := newBoard()
		changed, err := b.Set(ctx, "x", 1, user)
		require.NoError(t, err)
		assert.True(t, changed)

		v, err := b.Value(ctx, "x")
		require.NoError(t, err)
		assert.EqualValues(t, 1, v)

		changed, err = b.Set(ctx, "x", 1, user)
		require.NoError(t, err)
		assert.False(t, changed, "re-setting the same value must not report a change")
	})

	t.Run("Retract", func(t *testing.T) {
		b := newBoard()
		_, err := b.Set(ctx, "x", "a", node)
		require.NoError(t, err)

		changed, err := b.Retract(ctx, "x", node)
		require.NoError(t, err)
		assert.True(t, changed)

		_, err = b.Value(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrNoValue)

		changed, err = b.Retract(ctx, "x", node)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Fact Per Source", func(t *testing.T) {
		b := newBoard()
		_, _ = b.Set(ctx, "x", "from-user", user)
		_, _ = b.Set(ctx, "x", "from-node", node)

		v, ok, err := b.Fact(ctx, "x", user)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "from-user", v)

		_, ok, err = b.Fact(ctx, "x", snap)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Snapshot Facts Yield To Others", func(t *testing.T) {
		b := newBoard()
		_, _ = b.Set(ctx, "x", "frozen", snap)
		_, _ = b.Set(ctx, "x", "live", node)

		v, err := b.Value(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "live", v)

		changed, err := b.Retract(ctx, "x", node)
		require.NoError(t, err)
		assert.True(t, changed)
		v, err = b.Value(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "frozen", v)
	})

	t.Run("Latest Fact Wins", func(t *testing.T) {
		b := newBoard()
		_, _ = b.Set(ctx, "x", "first", user)
		_, _ = b.Set(ctx, "x", "second", node)
		v, err := b.Value(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("Objects", func(t *testing.T) {
		b := newBoard()
		_, _ = b.Set(ctx, "a", 1, user)
		_, _ = b.Set(ctx, "b", 2, node)
		ids, err := b.Objects(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.ObjectID{"a", "b"}, ids)
	})

	t.Run("Facts And Restore Keep Recency", func(t *testing.T) {
		b := newBoard()
		_, _ = b.Set(ctx, "x", "first", user)
		_, _ = b.Set(ctx, "x", "second", node)

		facts, err := b.Facts(ctx, "x")
		require.NoError(t, err)
		require.Len(t, facts, 2)
		assert.Equal(t, user, facts[0].Source)
		assert.Equal(t, node, facts[1].Source)
		assert.Equal(t, "second", facts[1].Value)

		_, _ = b.Set(ctx, "x", "third", user)
		v, _ := b.Value(ctx, "x")
		assert.Equal(t, "third", v)

		require.NoError(t, b.Restore(ctx, "x", facts))
		v, err = b.Value(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "second", v, "restored order must decide the merged value")
		got, ok, err := b.Fact(ctx, "x", user)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "first", got)

		require.NoError(t, b.Restore(ctx, "x", nil))
		_, err = b.Value(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrNoValue)
		ids, err := b.Objects(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
