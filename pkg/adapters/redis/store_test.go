package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/adapters/redis"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/dsl"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisBlackboard_Contract(t *testing.T) {
	_, client := newClient(t)
	n := 0
	ports.RunBlackboardContract(t, func() ports.Blackboard {
		n++
		return redis.NewBlackboard(client, fmt.Sprintf("contract-%d", n))
	})
}

func TestRedisBlackboard_Prefix(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	b := redis.NewBlackboard(client, "my-session", redis.WithPrefix("custom:app:"))

	_, err := b.Set(ctx, "x", 1, domain.User())
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:session:my-session:fact:x"), "Expected fact hash with custom prefix")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix")

	sessions, err := redis.Sessions(ctx, client, "custom:app:")
	require.NoError(t, err)
	assert.Equal(t, []string{"my-session"}, sessions)
}

func TestRedisBlackboard_TTL(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	b := redis.NewBlackboard(client, "session-ttl", redis.WithTTL(time.Second))

	_, err := b.Set(ctx, "x", "v", domain.User())
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = b.Value(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNoValue)
}

func TestRedisBlackboard_Delete(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	b := redis.NewBlackboard(client, "s1")
	other := redis.NewBlackboard(client, "s2")

	_, err := b.Set(ctx, "x", 1, domain.User())
	require.NoError(t, err)
	_, err = other.Set(ctx, "x", 2, domain.User())
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx))
	assert.False(t, mr.Exists("flux:session:s1:fact:x"))

	v, err := other.Value(ctx, "x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	sessions, err := redis.Sessions(ctx, client, redis.DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, sessions)
}

func TestRedisBlackboard_DrivesEngine(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	b := dsl.New("F")
	b.Add("start").Start().When(cond.Equal("a", 1), "A")
	b.Add("A").Do(action.Set("X", 1)).Go("K")
	b.Add("K").Checkpoint()
	f, err := b.Build()
	require.NoError(t, err)
	set := flow.NewSet()
	require.NoError(t, set.Register(f))

	board := redis.NewBlackboard(client, "engine")
	s := runtime.NewEngine(set).NewSession("engine", board)
	require.NoError(t, s.Start(ctx, "F", "start"))
	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Retract(ctx, "a"))

	v, ok, err := board.Fact(ctx, "X", domain.FromCheckpoint("F", "K"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, v)
	assert.True(t, s.IsActive("F", "K"))
}
