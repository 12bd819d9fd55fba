// Package memstore is an in-process kvstore backed by go-cache. It is the
// default for tests and single-process development.
package memstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-link/kvstore"
	gocache "github.com/patrickmn/go-cache"
)

var _ kvstore.NotifyingStore = (*Store)(nil)

type Store struct {
	*kvstore.Broadcaster
	c *gocache.Cache
}

func New() *Store {
	return &Store{
		Broadcaster: kvstore.NewBroadcaster(),
		c:           gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	b, _ := v.([]byte)
	return clone(b), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.c.Set(key, clone(value), expiration(ttl))
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	// Add fails when a live item already exists; go-cache holds its lock across check and insert.
	if err := s.c.Add(key, clone(value), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

func (s *Store) Publish(_ context.Context, change kvstore.Change) error {
	if change.Origin == "" {
		change.Origin = s.Origin()
	}
	if change.At.IsZero() {
		change.At = time.Now()
	}
	s.Emit(change)
	return nil
}
