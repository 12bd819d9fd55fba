package memstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/kvstore/memstore"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := s.Get(ctx, "k")
	require.True(t, kvstore.IsNotFound(err))

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), 0))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	ok, err := s.SetNX(ctx, "k", []byte("first"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SetNX(ctx, "k", []byte("second"), 0)
	require.NoError(t, err)
	require.False(t, ok)

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "first", string(v))
}

func TestStore_SetNXConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.SetNX(ctx, "k", []byte("x"), 0); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	ok, err := s.SetNX(ctx, "k", []byte("again"), 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_ReturnedValueIsCopy(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, "k", []byte("abc"), 0))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'z'

	v2, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(v2))
}

func TestStore_PublishFillsOrigin(t *testing.T) {
	s := memstore.New()

	var got kvstore.Change
	_, err := s.Subscribe(func(c kvstore.Change) { got = c })
	require.NoError(t, err)

	require.NoError(t, s.Publish(context.Background(), kvstore.Change{Key: "auth:session"}))
	require.Equal(t, "auth:session", got.Key)
	require.Equal(t, s.Origin(), got.Origin)
	require.False(t, got.At.IsZero())
}
