package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/adapters/memory"
	"github.com/aretw0/flux/pkg/adapters/redis"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/dsl"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/aretw0/flux/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *runtime.Engine {
	t.Helper()
	b := dsl.New("Greeting").Autostart()
	b.Add("start").Start().Go("hello")
	b.Add("hello").Do(action.Set("greeted", true))
	set := flow.NewSet()
	require.NoError(t, set.Register(b.MustBuild()))
	return runtime.NewEngine(set)
}

func memoryBoards(context.Context, string) (ports.Blackboard, error) {
	return memory.NewBlackboard(), nil
}

func TestManager_OpenInitializesOnce(t *testing.T) {
	mgr := session.NewManager(newEngine(t), memoryBoards)
	ctx := context.Background()

	var wg sync.WaitGroup
	opened := make([]*runtime.Session, 8)
	for i := range opened {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := mgr.Open(ctx, "atomic-init")
			assert.NoError(t, err)
			opened[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range opened {
		assert.Same(t, opened[0], s)
	}
	assert.True(t, opened[0].IsActive("Greeting", "hello"))
	assert.Len(t, opened[0].Runs(), 1)
	assert.Equal(t, []string{"atomic-init"}, mgr.List())
}

func TestManager_WithSession(t *testing.T) {
	mgr := session.NewManager(newEngine(t), memoryBoards)
	ctx := context.Background()

	err := mgr.WithSession(ctx, "missing", func(context.Context, *runtime.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = mgr.Open(ctx, "s1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := mgr.WithSession(ctx, "s1", func(ctx context.Context, s *runtime.Session) error {
				return s.Set(ctx, "n", i)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := mgr.Get("s1")
	require.NoError(t, err)
	_, err = s.Board().Value(ctx, "n")
	assert.NoError(t, err)
}

func TestManager_Close(t *testing.T) {
	var closed []string
	mgr := session.NewManager(newEngine(t), memoryBoards, session.WithOnClose(func(id string) { closed = append(closed, id) }))
	ctx := context.Background()

	s, err := mgr.Open(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, mgr.Close(ctx, "s1"))

	assert.ErrorIs(t, s.Set(ctx, "x", 1), domain.ErrSessionClosed)
	assert.Empty(t, mgr.List())
	assert.Equal(t, []string{"s1"}, closed)
	assert.ErrorIs(t, mgr.Close(ctx, "s1"), domain.ErrSessionNotFound)
}

func TestManager_DistributedLockWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	boards := func(_ context.Context, id string) (ports.Blackboard, error) {
		return redis.NewBlackboard(client, id), nil
	}
	mgr := session.NewManager(newEngine(t), boards,
		session.WithLocker(redis.NewLocker(client, "test:")),
		session.WithLockTTL(5*time.Second),
	)

	s, err := mgr.Open(ctx, "shared")
	require.NoError(t, err)
	v, err := s.Board().Value(ctx, "greeted")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	err = mgr.WithSession(ctx, "shared", func(ctx context.Context, s *runtime.Session) error {
		assert.True(t, mr.Exists("test:lock:shared"), "distributed lock held during the operation")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:shared"))

	require.NoError(t, mgr.Close(ctx, "shared"))
	assert.False(t, mr.Exists("flux:session:shared:fact:greeted"), "closing clears the redis facts")
}

func TestManager_BoardFailure(t *testing.T) {
	broken := func(context.Context, string) (ports.Blackboard, error) {
		return nil, errors.New("disk full")
	}
	mgr := session.NewManager(newEngine(t), broken)

	_, err := mgr.Open(context.Background(), "s1")
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, mgr.List())
}
