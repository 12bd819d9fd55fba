package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/rs/zerolog/log"
)

// Establisher is the only writer of the session slot.
type Establisher struct {
	kv        kvstore.Store
	notifier  kvstore.Notifier
	publisher Publisher
	nowTime   func() time.Time
}

type Option func(*Establisher)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Establisher) {
		e.nowTime = nowFunc
	}
}

// WithNotifier sets where change notifications go. Defaults to kv itself
// when it implements kvstore.Notifier.
func WithNotifier(n kvstore.Notifier) Option {
	return func(e *Establisher) {
		e.notifier = n
	}
}

func NewEstablisher(kv kvstore.Store, publisher Publisher, opts ...Option) (*Establisher, error) {
	if kv == nil {
		return nil, errors.New("[session.NewEstablisher] store is required")
	}
	if publisher == nil {
		return nil, errors.New("[session.NewEstablisher] publisher is required")
	}
	e := &Establisher{
		kv:        kv,
		publisher: publisher,
		nowTime:   time.Now,
	}
	if n, ok := kv.(kvstore.Notifier); ok {
		e.notifier = n
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Commit persists s, then republishes, then notifies. Only the persist step
// can fail the call. s itself is not modified.
func (e *Establisher) Commit(ctx context.Context, s *AuthSession) error {
	if s == nil || s.AccessToken == "" || s.User.ID == "" {
		return errs.Wrapf(errs.ErrInvalidSession, "[Commit] access token and user id are required")
	}
	sess := *s
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = e.nowTime().UTC()
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return errs.Wrapf(err, "[Commit] encoding session")
	}
	if err := e.kv.Set(ctx, SessionKey, raw, 0); err != nil {
		return errs.Wrapf(err, "[Commit] persisting session")
	}

	u := sess.User
	e.publisher.SetCurrentUser(ctx, &u)
	e.publisher.SetAuthenticated(ctx, true)
	e.notify(ctx)

	log.Info().Str("user_id", sess.User.ID).Bool("new_user", sess.IsNewUser).Msg("session established")
	return nil
}

// Clear removes the session and publishes the signed-out state.
func (e *Establisher) Clear(ctx context.Context) error {
	if err := e.kv.Delete(ctx, SessionKey); err != nil {
		return errs.Wrapf(err, "[Clear] removing session")
	}
	e.publisher.SetCurrentUser(ctx, nil)
	e.publisher.SetAuthenticated(ctx, false)
	e.notify(ctx)
	log.Info().Msg("session cleared")
	return nil
}

func (e *Establisher) Load(ctx context.Context) (*AuthSession, error) {
	return Load(ctx, e.kv)
}

func (e *Establisher) notify(ctx context.Context) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, kvstore.Change{Key: SessionKey, At: e.nowTime()}); err != nil {
		log.Warn().Err(err).Msg("session change notification failed")
	}
}

// Load reads the durable session. ErrNotAuthenticated means there is none.
func Load(ctx context.Context, kv kvstore.Store) (*AuthSession, error) {
	raw, err := kv.Get(ctx, SessionKey)
	if kvstore.IsNotFound(err) {
		return nil, errs.ErrNotAuthenticated
	}
	if err != nil {
		return nil, errs.Wrapf(err, "[Load] reading session")
	}

	var s AuthSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errs.Wrapf(errs.ErrInvalidSession, "[Load] %v", err)
	}
	if s.AccessToken == "" || s.User.ID == "" {
		return nil, errs.ErrInvalidSession
	}
	return &s, nil
}
