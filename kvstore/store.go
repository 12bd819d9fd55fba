// Package kvstore defines the durable key-value slots shared by the login and
// link flow (state token, callback records, auth session) together with the
// storage-change notifications that keep independent views converged.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the durable slot storage injected into each flow component.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent, reporting whether it did.
	// The check and the write are a single atomic step.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Change describes a write to a key, as seen by subscribers.
type Change struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Notifier publishes and delivers storage-change notifications.
type Notifier interface {
	Publish(ctx context.Context, change Change) error

	// Subscribe registers fn for every change. The returned func removes it.
	Subscribe(fn func(Change)) (func(), error)
}

// NotifyingStore is a Store that also carries change notifications.
type NotifyingStore interface {
	Store
	Notifier
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
