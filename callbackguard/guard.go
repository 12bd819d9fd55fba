// Package callbackguard makes callback handling at-most-once per
// authorization code. Records move forward only:
//
//	(absent) -> PROCESSING -> COMPLETED
//	                      \-> FAILED
package callbackguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

const (
	keyPrefix = "oauth:callback:"
	keyLength = 16

	DefaultProcessingTTL = time.Minute
	DefaultRetention     = 24 * time.Hour
)

type Record struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Guard struct {
	kv            kvstore.Store
	processingTTL time.Duration
	retention     time.Duration
	nowTime       func() time.Time
}

type Option func(*Guard)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Guard) {
		g.nowTime = nowFunc
	}
}

// WithProcessingTTL bounds how long an unfinished record blocks its code.
func WithProcessingTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.processingTTL = d
		}
	}
}

// WithRetention sets how long finished records are kept.
func WithRetention(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.retention = d
		}
	}
}

// ProcessingTTL is how long a claim blocks its code before it lapses.
func (g *Guard) ProcessingTTL() time.Duration {
	return g.processingTTL
}

func New(kv kvstore.Store, opts ...Option) (*Guard, error) {
	if kv == nil {
		return nil, errors.New("[callbackguard.New] store is required")
	}
	g := &Guard{
		kv:            kv,
		processingTTL: DefaultProcessingTTL,
		retention:     DefaultRetention,
		nowTime:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Key derives the short record key for code. The code itself is never stored.
func Key(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])[:keyLength]
}

func slotKey(code string) string {
	return keyPrefix + Key(code)
}

// ShouldProcess claims code for this caller. It returns false when any record
// already exists for the code. Claiming is a single create-if-absent write.
func (g *Guard) ShouldProcess(ctx context.Context, code string) (bool, error) {
	now := g.nowTime().UTC()
	raw, err := json.Marshal(Record{
		Key:       Key(code),
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}

	claimed, err := g.kv.SetNX(ctx, slotKey(code), raw, g.processingTTL)
	if err != nil {
		return false, errs.Wrapf(err, "[ShouldProcess] claiming callback record")
	}
	if !claimed {
		log.Debug().Str("guard_key", Key(code)).Msg("callback already claimed")
	}
	return claimed, nil
}

func (g *Guard) MarkCompleted(ctx context.Context, code string) error {
	return g.transition(ctx, code, StatusCompleted)
}

// MarkFailed finishes the record unsuccessfully. The same code stays blocked
// until Reset or retention expiry; a new code is unaffected.
func (g *Guard) MarkFailed(ctx context.Context, code string) error {
	return g.transition(ctx, code, StatusFailed)
}

// Reset removes the record for code regardless of status.
func (g *Guard) Reset(ctx context.Context, code string) error {
	return g.kv.Delete(ctx, slotKey(code))
}

func (g *Guard) Lookup(ctx context.Context, code string) (*Record, error) {
	raw, err := g.kv.Get(ctx, slotKey(code))
	if kvstore.IsNotFound(err) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errs.Wrapf(err, "[Lookup] decoding callback record")
	}
	return &rec, nil
}

func (g *Guard) transition(ctx context.Context, code string, to Status) error {
	rec, err := g.Lookup(ctx, code)
	if err != nil {
		return errs.Wrapf(err, "[transition] %s", to)
	}
	if rec.Status != StatusProcessing {
		return errs.Wrapf(errs.ErrInvalidTransition, "[transition] %s -> %s", rec.Status, to)
	}

	rec.Status = to
	rec.UpdatedAt = g.nowTime().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := g.kv.Set(ctx, slotKey(code), raw, g.retention); err != nil {
		return errs.Wrapf(err, "[transition] persisting %s", to)
	}
	log.Debug().Str("guard_key", rec.Key).Str("status", string(to)).Msg("callback record updated")
	return nil
}
