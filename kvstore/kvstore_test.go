package kvstore_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/kvstore/memstore"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTripBoundToKey(t *testing.T) {
	s, err := kvstore.NewSealer("test-secret")
	require.NoError(t, err)

	sealed, err := s.Seal("auth:session", []byte(`{"accessToken":"tok1"}`))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "tok1")

	plain, err := s.Open("auth:session", sealed)
	require.NoError(t, err)
	require.Equal(t, `{"accessToken":"tok1"}`, string(plain))

	_, err = s.Open("oauth:state:login", sealed)
	require.Error(t, err)
}

func TestSealer_RejectsEmptySecret(t *testing.T) {
	_, err := kvstore.NewSealer("")
	require.Error(t, err)
}

func TestBroadcaster_SubscribeAndUnsubscribe(t *testing.T) {
	b := kvstore.NewBroadcaster()
	require.NotEmpty(t, b.Origin())

	var got []string
	unsubscribe, err := b.Subscribe(func(c kvstore.Change) { got = append(got, c.Key) })
	require.NoError(t, err)

	b.Emit(kvstore.Change{Key: "a"})
	unsubscribe()
	b.Emit(kvstore.Change{Key: "b"})

	require.Equal(t, []string{"a"}, got)
}

func TestScopedKey_SplitScope(t *testing.T) {
	full := kvstore.ScopedKey("b1", "auth:session")
	require.Equal(t, "browser:b1:auth:session", full)

	scope, key := kvstore.SplitScope(full)
	require.Equal(t, "b1", scope)
	require.Equal(t, "auth:session", key)

	scope, key = kvstore.SplitScope("auth:session")
	require.Empty(t, scope)
	require.Equal(t, "auth:session", key)

	require.Equal(t, "auth:session", kvstore.ScopedKey("", "auth:session"))
}

func TestScoped_IsolatesBrowsers(t *testing.T) {
	inner := memstore.New()
	s := kvstore.NewScoped(inner)
	a := kvstore.WithScope(context.Background(), "a")
	b := kvstore.WithScope(context.Background(), "b")

	require.NoError(t, s.Set(a, "auth:session", []byte("A"), 0))

	_, err := s.Get(b, "auth:session")
	require.True(t, kvstore.IsNotFound(err))

	ok, err := s.SetNX(b, "auth:session", []byte("B"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(a, "auth:session")
	require.NoError(t, err)
	require.Equal(t, "A", string(got))

	require.NoError(t, s.Delete(b, "auth:session"))
	got, err = inner.Get(context.Background(), "browser:a:auth:session")
	require.NoError(t, err)
	require.Equal(t, "A", string(got))
}

func TestScoped_RequiresScope(t *testing.T) {
	s := kvstore.NewScoped(memstore.New())
	ctx := context.Background()

	_, err := s.Get(ctx, "auth:session")
	require.ErrorIs(t, err, kvstore.ErrNoScope)
	require.ErrorIs(t, s.Set(ctx, "auth:session", []byte("x"), 0), kvstore.ErrNoScope)
	_, err = s.SetNX(ctx, "auth:session", []byte("x"), 0)
	require.ErrorIs(t, err, kvstore.ErrNoScope)
	require.ErrorIs(t, s.Delete(ctx, "auth:session"), kvstore.ErrNoScope)
	require.ErrorIs(t, s.Publish(ctx, kvstore.Change{Key: "auth:session"}), kvstore.ErrNoScope)
}

func TestScoped_PublishCarriesScopedKey(t *testing.T) {
	inner := memstore.New()
	s := kvstore.NewScoped(inner)

	var got []string
	stop, err := s.Subscribe(func(c kvstore.Change) { got = append(got, c.Key) })
	require.NoError(t, err)
	defer stop()

	ctx := kvstore.WithScope(context.Background(), "a")
	require.NoError(t, s.Publish(ctx, kvstore.Change{Key: "auth:session"}))
	require.Equal(t, []string{"browser:a:auth:session"}, got)
}
