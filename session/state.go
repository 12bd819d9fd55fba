package session

import (
	"context"
	"errors"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/kvstore"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	refreshTimeout = 5 * time.Second

	// viewTTL bounds how long an idle browser's projection is kept in memory.
	// An evicted projection is rebuilt by the next Refresh.
	viewTTL = time.Hour
)

var _ Publisher = (*State)(nil)

// State holds the in-memory PublishedState of each browser scope. It is
// updated directly by an Establisher in the same process and by Refresh for
// changes made elsewhere. The scope comes from the context, so a State over
// an unscoped store holds a single projection.
type State struct {
	kv kvstore.Store

	mu    sync.Mutex
	views *gocache.Cache

	group singleflight.Group
}

func NewState(kv kvstore.Store) *State {
	return &State{
		kv:    kv,
		views: gocache.New(viewTTL, viewTTL),
	}
}

func (s *State) view(scope string) PublishedState {
	v, ok := s.views.Get(scope)
	if !ok {
		return PublishedState{}
	}
	return v.(PublishedState)
}

func (s *State) update(scope string, fn func(p *PublishedState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.view(scope)
	fn(&p)
	s.views.SetDefault(scope, p)
}

func (s *State) SetCurrentUser(ctx context.Context, u *User) {
	s.update(kvstore.ScopeFrom(ctx), func(p *PublishedState) {
		if u == nil {
			p.User = nil
			return
		}
		cp := *u
		p.User = &cp
	})
}

func (s *State) SetAuthenticated(ctx context.Context, authenticated bool) {
	s.update(kvstore.ScopeFrom(ctx), func(p *PublishedState) {
		p.Authenticated = authenticated
	})
}

func (s *State) Publish(ctx context.Context, p PublishedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views.SetDefault(kvstore.ScopeFrom(ctx), clonePublished(p))
}

// Snapshot returns the projection for the scope of ctx. A scope that was
// never published reads as signed out.
func (s *State) Snapshot(ctx context.Context) PublishedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePublished(s.view(kvstore.ScopeFrom(ctx)))
}

// Refresh re-derives the projection from durable storage. Concurrent calls
// for the same scope share one read.
func (s *State) Refresh(ctx context.Context) (PublishedState, error) {
	scope := kvstore.ScopeFrom(ctx)
	v, err, _ := s.group.Do(kvstore.ScopedKey(scope, SessionKey), func() (interface{}, error) {
		sess, err := Load(ctx, s.kv)
		if errors.Is(err, errs.ErrNotAuthenticated) || errors.Is(err, errs.ErrInvalidSession) {
			return PublishedState{}, nil
		}
		if err != nil {
			return nil, err
		}
		return sess.Published(), nil
	})
	if err != nil {
		return s.Snapshot(ctx), err
	}

	p := v.(PublishedState)
	s.Publish(ctx, p)
	return clonePublished(p), nil
}

// Watch refreshes a scope's projection whenever its session slot changes.
// Scopes this State does not hold are left to be read on demand. The
// returned func stops watching.
func (s *State) Watch(n kvstore.Notifier) (func(), error) {
	return n.Subscribe(func(c kvstore.Change) {
		scope, key := kvstore.SplitScope(c.Key)
		if key != SessionKey {
			return
		}
		if _, held := s.views.Get(scope); !held && scope != "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if scope != "" {
			ctx = kvstore.WithScope(ctx, scope)
		}
		if _, err := s.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("origin", c.Origin).Msg("session refresh after change failed")
		}
	})
}

func clonePublished(p PublishedState) PublishedState {
	if p.User != nil {
		u := *p.User
		p.User = &u
	}
	return p
}
