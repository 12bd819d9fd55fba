// Package redisstore shares flow slots between instances through Redis.
// Change notifications travel over a pub/sub channel.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ kvstore.NotifyingStore = (*Store)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	*kvstore.Broadcaster

	client *redis.Client
	prefix string
}

// Dial connects and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("[redisstore Dial] ping: %w", err)
	}
	return New(rdb, cfg.Prefix), nil
}

func New(client *redis.Client, prefix string) *Store {
	return &Store{
		Broadcaster: kvstore.NewBroadcaster(),
		client:      client,
		prefix:      prefix,
	}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) channel() string {
	return s.key("changes")
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, ttl).Result()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *Store) Publish(ctx context.Context, change kvstore.Change) error {
	if change.Origin == "" {
		change.Origin = s.Origin()
	}
	if change.At.IsZero() {
		change.At = time.Now()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel(), payload).Err()
}

// Listen relays changes published by any instance to local subscribers
// until ctx is done.
func (s *Store) Listen(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("[redisstore Listen] subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change kvstore.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Warn().Err(err).Msg("discarding malformed change notification")
				continue
			}
			s.Emit(change)
		}
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}
