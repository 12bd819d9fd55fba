// Package statetoken issues and verifies the single-use CSRF state token that
// binds a provider callback to the browser flow that started it.
package statetoken

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/rs/zerolog/log"
)

const (
	tokenBytes    = 32
	slotKeyPrefix = "oauth:state:"

	DefaultMaxAge = 10 * time.Minute
)

// Flow is what the state slot remembers about one authorization round trip.
type Flow struct {
	Intent   oauthmodel.Intent `json:"intent"`
	Token    string            `json:"token"`
	FlowID   string            `json:"flowId"`
	ReturnTo string            `json:"returnTo,omitempty"`
	IssuedAt time.Time         `json:"issuedAt"`
}

type Store struct {
	kv      kvstore.Store
	maxAge  time.Duration
	bypass  bool
	nowTime func() time.Time
	random  io.Reader

	// serialises read-compare-delete so a token verifies once per process
	mu sync.Mutex
}

type Option func(*Store)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithMaxAge bounds how long an issued token stays verifiable.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithVerificationBypass disables the token comparison. Every bypassed
// verification is logged as a warning and still clears the slot.
func WithVerificationBypass(bypass bool) Option {
	return func(s *Store) {
		s.bypass = bypass
	}
}

func New(kv kvstore.Store, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("[statetoken.New] store is required")
	}
	s := &Store{
		kv:      kv,
		maxAge:  DefaultMaxAge,
		nowTime: time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bypass {
		log.Warn().Msg("OAuth state verification is DISABLED; callbacks are not CSRF protected")
	}
	return s, nil
}

func SlotKey(intent oauthmodel.Intent) string {
	return slotKeyPrefix + intent.Slot()
}

// Issue generates a fresh token for intent, replacing whatever the slot held.
func (s *Store) Issue(ctx context.Context, intent oauthmodel.Intent, returnTo string) (Flow, error) {
	if !intent.Valid() {
		return Flow{}, oauthmodel.ErrUnknownIntent
	}

	token, err := s.newToken()
	if err != nil {
		return Flow{}, errs.Wrapf(err, "[Issue] generating state token")
	}

	flow := Flow{
		Intent:   intent,
		Token:    token,
		FlowID:   uuid.NewString(),
		ReturnTo: returnTo,
		IssuedAt: s.nowTime().UTC(),
	}

	raw, err := json.Marshal(flow)
	if err != nil {
		return Flow{}, errs.Wrapf(err, "[Issue] encoding flow")
	}
	if err := s.kv.Set(ctx, SlotKey(intent), raw, s.maxAge); err != nil {
		return Flow{}, errs.Wrapf(err, "[Issue] persisting state token")
	}

	log.Debug().Str("intent", intent.Slot()).Str("flow_id", flow.FlowID).Msg("state token issued")
	return flow, nil
}

// VerifyAndConsume reports whether received matches the token stored for
// intent. On a match the slot is cleared and the stored flow returned. A
// mismatch or an empty value leaves the slot in place. When ok is false err
// says why; storage failures also fail closed.
func (s *Store) VerifyAndConsume(ctx context.Context, intent oauthmodel.Intent, received string) (Flow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SlotKey(intent)
	stored, err := s.load(ctx, key)
	if err != nil && !errors.Is(err, errs.ErrStateMissing) {
		return Flow{}, false, err
	}

	if s.bypass {
		if delErr := s.kv.Delete(ctx, key); delErr != nil {
			return Flow{}, false, errs.Wrapf(delErr, "[VerifyAndConsume] clearing state slot")
		}
		log.Warn().Str("intent", intent.Slot()).Str("flow_id", stored.FlowID).
			Msg("OAuth state verification BYPASSED by configuration")
		stored.Intent = intent
		return stored, true, nil
	}

	if err != nil {
		return Flow{}, false, err
	}
	if received == "" {
		return Flow{}, false, errs.ErrStateEmpty
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(received)) != 1 {
		return Flow{}, false, errs.ErrStateMismatch
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return Flow{}, false, errs.Wrapf(err, "[VerifyAndConsume] consuming state token")
	}
	return stored, true, nil
}

// Clear drops any pending token for intent.
func (s *Store) Clear(ctx context.Context, intent oauthmodel.Intent) error {
	return s.kv.Delete(ctx, SlotKey(intent))
}

func (s *Store) load(ctx context.Context, key string) (Flow, error) {
	raw, err := s.kv.Get(ctx, key)
	if kvstore.IsNotFound(err) {
		return Flow{}, errs.ErrStateMissing
	}
	if err != nil {
		return Flow{}, errs.Wrapf(err, "[VerifyAndConsume] reading state slot")
	}

	var flow Flow
	if err := json.Unmarshal(raw, &flow); err != nil || flow.Token == "" {
		_ = s.kv.Delete(ctx, key)
		return Flow{}, fmt.Errorf("%w: unreadable slot", errs.ErrStateMissing)
	}

	if s.nowTime().Sub(flow.IssuedAt) > s.maxAge {
		_ = s.kv.Delete(ctx, key)
		return Flow{}, fmt.Errorf("%w: expired", errs.ErrStateMissing)
	}
	return flow, nil
}

func (s *Store) newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
