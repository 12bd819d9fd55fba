package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, mr *miniredis.Miniredis) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "authlink")
}

func TestStore_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	s := New(client, "authlink")
	require.Equal(t, "authlink:auth:session", s.key("auth:session"))
	require.Equal(t, "authlink:changes", s.channel())

	bare := New(client, "")
	require.Equal(t, "auth:session", bare.key("auth:session"))
}

func TestStore_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	ctx := context.Background()

	_, err := s.Get(ctx, "auth:session")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, "auth:session", []byte("v1"), 0))
	v, err := s.Get(ctx, "auth:session")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	raw, err := mr.Get("authlink:auth:session")
	require.NoError(t, err)
	require.Equal(t, "v1", raw)

	require.NoError(t, s.Delete(ctx, "auth:session"))
	require.NoError(t, s.Delete(ctx, "auth:session"))
	_, err = s.Get(ctx, "auth:session")
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStore_SetExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStore(t, mr)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "oauth:state:login", []byte("tok"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "oauth:state:login")
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStore_SetNXSingleWinnerAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestStore(t, mr)
	b := newTestStore(t, mr)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := a
		if i%2 == 1 {
			s = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetNX(ctx, "oauth:callback:abc", []byte("PROCESSING"), time.Minute)
			require.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	// a lapsed claim can be taken again
	mr.FastForward(2 * time.Minute)
	ok, err := b.SetNX(ctx, "oauth:callback:abc", []byte("PROCESSING"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_ListenRelaysOtherInstanceChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := newTestStore(t, mr)
	reader := newTestStore(t, mr)

	got := make(chan kvstore.Change, 4)
	unsubscribe, err := reader.Subscribe(func(c kvstore.Change) { got <- c })
	require.NoError(t, err)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Listen(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(reader.channel())[reader.channel()] == 1
	}, 2*time.Second, 5*time.Millisecond)

	// malformed payloads are dropped
	mr.Publish(reader.channel(), "{not json")
	require.NoError(t, writer.Publish(context.Background(), kvstore.Change{Key: "browser:b1:auth:session"}))

	select {
	case c := <-got:
		require.Equal(t, "browser:b1:auth:session", c.Key)
		require.Equal(t, writer.Origin(), c.Origin)
		require.False(t, c.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("change was not relayed")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not stop")
	}
	require.Empty(t, got)
}
