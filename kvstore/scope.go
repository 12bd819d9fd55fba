package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoScope is returned by a Scoped store when the context carries no
// browser scope.
var ErrNoScope = errors.New("kvstore: no browser scope in context")

const scopePrefix = "browser:"

type scopeCtxKey struct{}

// WithScope returns a context whose Scoped store operations are confined to
// scope. Scopes must not contain ':'.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, scope)
}

// ScopeFrom returns the scope carried by ctx, or "" when there is none.
func ScopeFrom(ctx context.Context) string {
	scope, _ := ctx.Value(scopeCtxKey{}).(string)
	return scope
}

// ScopedKey namespaces key under scope. An empty scope leaves key unchanged.
func ScopedKey(scope, key string) string {
	if scope == "" {
		return key
	}
	return scopePrefix + scope + ":" + key
}

// SplitScope reverses ScopedKey.
func SplitScope(full string) (scope, key string) {
	rest, ok := strings.CutPrefix(full, scopePrefix)
	if !ok {
		return "", full
	}
	scope, key, ok = strings.Cut(rest, ":")
	if !ok || scope == "" {
		return "", full
	}
	return scope, key
}

var _ NotifyingStore = (*Scoped)(nil)

// Scoped confines every key to the browser scope of the calling context, so
// each browser profile gets its own state and session slots on a shared
// backend. Subscribers receive full keys; use SplitScope to recover the slot.
type Scoped struct {
	inner NotifyingStore
}

func NewScoped(inner NotifyingStore) *Scoped {
	return &Scoped{inner: inner}
}

func (s *Scoped) key(ctx context.Context, key string) (string, error) {
	scope := ScopeFrom(ctx)
	if scope == "" {
		return "", ErrNoScope
	}
	return ScopedKey(scope, key), nil
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.key(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, k)
}

func (s *Scoped) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := s.key(ctx, key)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, k, value, ttl)
}

func (s *Scoped) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k, err := s.key(ctx, key)
	if err != nil {
		return false, err
	}
	return s.inner.SetNX(ctx, k, value, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	k, err := s.key(ctx, key)
	if err != nil {
		return err
	}
	return s.inner.Delete(ctx, k)
}

func (s *Scoped) Publish(ctx context.Context, change Change) error {
	k, err := s.key(ctx, change.Key)
	if err != nil {
		return err
	}
	change.Key = k
	return s.inner.Publish(ctx, change)
}

func (s *Scoped) Subscribe(fn func(Change)) (func(), error) {
	return s.inner.Subscribe(fn)
}
