package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/kvstore/filestore"
	"github.com/jrsteele09/go-auth-link/kvstore/memstore"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/stretchr/testify/require"
)

func testSession() *session.AuthSession {
	return &session.AuthSession{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-abc",
		User:         session.User{ID: "u-1", Name: "Ada", Email: "ada@example.com"},
		IsNewUser:    true,
	}
}

func TestCommit_PersistsAndPublishes(t *testing.T) {
	kv := memstore.New()
	state := session.NewState(kv)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	est, err := session.NewEstablisher(kv, state, session.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	var changes []kvstore.Change
	unsub, err := kv.Subscribe(func(c kvstore.Change) { changes = append(changes, c) })
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, est.Commit(ctx, testSession()))

	snap := state.Snapshot(ctx)
	require.True(t, snap.Authenticated)
	require.Equal(t, "u-1", snap.User.ID)

	loaded, err := est.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-abc", loaded.AccessToken)
	require.Equal(t, "refresh-abc", loaded.RefreshToken)
	require.True(t, loaded.IsNewUser)
	require.Equal(t, now, loaded.CreatedAt)

	require.Len(t, changes, 1)
	require.Equal(t, session.SessionKey, changes[0].Key)
}

func TestCommit_RejectsIncompleteSession(t *testing.T) {
	ctx := context.Background()
	kv := memstore.New()
	est, err := session.NewEstablisher(kv, session.NewState(kv))
	require.NoError(t, err)

	err = est.Commit(ctx, &session.AuthSession{AccessToken: "x"})
	require.ErrorIs(t, err, errs.ErrInvalidSession)

	_, err = est.Load(ctx)
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestCommit_LeavesCallerValueUntouched(t *testing.T) {
	kv := memstore.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	est, err := session.NewEstablisher(kv, session.NewState(kv), session.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	in := testSession()
	require.NoError(t, est.Commit(ctx, in))
	require.True(t, in.CreatedAt.IsZero())

	loaded, err := est.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, now, loaded.CreatedAt)
}

func TestState_ScopesAreIndependent(t *testing.T) {
	kv := kvstore.NewScoped(memstore.New())
	state := session.NewState(kv)
	est, err := session.NewEstablisher(kv, state)
	require.NoError(t, err)

	a := kvstore.WithScope(context.Background(), "browser-a")
	b := kvstore.WithScope(context.Background(), "browser-b")

	stop, err := state.Watch(kv)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, est.Commit(a, testSession()))
	require.True(t, state.Snapshot(a).Authenticated)
	require.False(t, state.Snapshot(b).Authenticated)

	snap, err := state.Refresh(b)
	require.NoError(t, err)
	require.False(t, snap.Authenticated)

	_, err = est.Load(b)
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)

	require.NoError(t, est.Clear(b))
	require.True(t, state.Snapshot(a).Authenticated)
}

func TestClear(t *testing.T) {
	kv := memstore.New()
	state := session.NewState(kv)
	est, err := session.NewEstablisher(kv, state)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, est.Commit(ctx, testSession()))
	require.NoError(t, est.Clear(ctx))

	require.Equal(t, session.PublishedState{}, state.Snapshot(ctx))
	_, err = est.Load(ctx)
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := memstore.New()
	require.NoError(t, kv.Set(ctx, session.SessionKey, []byte("{not json"), 0))

	_, err := session.Load(ctx, kv)
	require.ErrorIs(t, err, errs.ErrInvalidSession)

	state := session.NewState(kv)
	state.Publish(ctx, session.PublishedState{Authenticated: true, User: &session.User{ID: "stale"}})
	snap, err := state.Refresh(ctx)
	require.NoError(t, err)
	require.False(t, snap.Authenticated)
}

func TestState_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	state := session.NewState(memstore.New())
	state.Publish(ctx, session.PublishedState{Authenticated: true, User: &session.User{ID: "u-1"}})

	snap := state.Snapshot(ctx)
	snap.User.ID = "tampered"
	require.Equal(t, "u-1", state.Snapshot(ctx).User.ID)
}

func TestState_WatchConvergesSharedStore(t *testing.T) {
	kv := memstore.New()
	writer := session.NewState(kv)
	reader := session.NewState(kv)

	stop, err := reader.Watch(kv)
	require.NoError(t, err)
	defer stop()

	est, err := session.NewEstablisher(kv, writer)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, est.Commit(ctx, testSession()))
	require.True(t, reader.Snapshot(ctx).Authenticated)
	require.Equal(t, "ada@example.com", reader.Snapshot(ctx).User.Email)

	require.NoError(t, est.Clear(ctx))
	require.False(t, reader.Snapshot(ctx).Authenticated)
}

func TestState_WatchConvergesAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storeA, err := filestore.New(dir)
	require.NoError(t, err)
	storeB, err := filestore.New(dir)
	require.NoError(t, err)
	require.NoError(t, storeB.Watch())
	t.Cleanup(func() { _ = storeB.Close() })

	other := session.NewState(storeB)
	stop, err := other.Watch(storeB)
	require.NoError(t, err)
	defer stop()

	est, err := session.NewEstablisher(storeA, session.NewState(storeA))
	require.NoError(t, err)
	require.NoError(t, est.Commit(ctx, testSession()))

	require.Eventually(t, func() bool {
		return other.Snapshot(ctx).Authenticated
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, est.Clear(ctx))
	require.Eventually(t, func() bool {
		return !other.Snapshot(ctx).Authenticated
	}, 3*time.Second, 20*time.Millisecond)
}

type slowStore struct {
	kvstore.Store
	gets    atomic.Int32
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	<-s.release
	return s.Store.Get(ctx, key)
}

func TestState_RefreshCoalesces(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	est, err := session.NewEstablisher(mem, session.NewState(mem))
	require.NoError(t, err)
	require.NoError(t, est.Commit(ctx, testSession()))

	slow := &slowStore{Store: mem, release: make(chan struct{})}
	state := session.NewState(slow)

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := state.Refresh(ctx)
			require.NoError(t, err)
			require.True(t, snap.Authenticated)
		}()
	}

	require.Eventually(t, func() bool { return slow.gets.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(slow.release)
	wg.Wait()

	require.Less(t, slow.gets.Load(), int32(callers))
	require.True(t, state.Snapshot(ctx).Authenticated)
}

type brokenStore struct{ kvstore.Store }

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("io failure")
}

func TestState_RefreshErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	state := session.NewState(brokenStore{Store: memstore.New()})
	state.Publish(ctx, session.PublishedState{Authenticated: true, User: &session.User{ID: "u-1"}})

	snap, err := state.Refresh(ctx)
	require.Error(t, err)
	require.True(t, snap.Authenticated)
}
