package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/flux/pkg/adapters/file"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackboard_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	n := 0
	ports.RunBlackboardContract(t, func() ports.Blackboard {
		n++
		b, err := store.Board(context.Background(), "contract-"+string(rune('a'+n)))
		require.NoError(t, err)
		return b
	})
}

func TestBlackboard_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store := file.New(t.TempDir())

	b, err := store.Board(ctx, "case-1")
	require.NoError(t, err)
	_, err = b.Set(ctx, "temperature", 39.5, domain.User())
	require.NoError(t, err)
	_, err = b.Set(ctx, "diagnosis", "fever", domain.FromCheckpoint("Triage", "review"))
	require.NoError(t, err)
	_, err = b.Set(ctx, "diagnosis", "flu", domain.FromNode("Triage", "flu"))
	require.NoError(t, err)

	again, err := store.Board(ctx, "case-1")
	require.NoError(t, err)
	v, err := again.Value(ctx, "diagnosis")
	require.NoError(t, err)
	assert.Equal(t, "flu", v)

	frozen, ok, err := again.Fact(ctx, "diagnosis", domain.FromCheckpoint("Triage", "review"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fever", frozen)

	// The sequence carries over: a new write still wins over older facts.
	_, err = again.Set(ctx, "diagnosis", "cold", domain.User())
	require.NoError(t, err)
	v, err = again.Value(ctx, "diagnosis")
	require.NoError(t, err)
	assert.Equal(t, "cold", v)

	temp, err := again.Value(ctx, "temperature")
	require.NoError(t, err)
	assert.Equal(t, 39.5, temp)
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"b", "a"} {
		board, err := store.Board(ctx, id)
		require.NoError(t, err)
		_, err = board.Set(ctx, "x", 1, domain.User())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	fresh, err := store.Board(ctx, "a")
	require.NoError(t, err)
	_, err = fresh.Value(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNoValue)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	_, err := store.Board(ctx, "")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	_, err = store.Board(ctx, "broken")
	assert.ErrorContains(t, err, "failed to decode session broken")

	assert.Equal(t, filepath.Join(".flux", "sessions"), file.New("").BasePath)
}

func TestBlackboard_Delete(t *testing.T) {
	ctx := context.Background()
	store := file.New(t.TempDir())
	b, err := store.Board(ctx, "gone")
	require.NoError(t, err)
	_, err = b.Set(ctx, "x", "y", domain.User())
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	objs, err := b.Objects(ctx)
	require.NoError(t, err)
	assert.Empty(t, objs)
}
