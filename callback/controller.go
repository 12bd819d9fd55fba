// Package callback drives a provider callback from receipt to a terminal
// outcome:
//
//	RECEIVED -> VERIFYING_STATE -> EXCHANGING -> COMMITTING -> DONE
//
// with ERROR(reason) reachable from every non-terminal phase and
// SKIPPED(duplicate) when the code was already claimed.
package callback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-link/callbackguard"
	"github.com/jrsteele09/go-auth-link/exchange"
	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/internal/metrics"
	"github.com/jrsteele09/go-auth-link/internal/utils"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/jrsteele09/go-auth-link/statetoken"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultExchangeTimeout = 30 * time.Second

type StateVerifier interface {
	VerifyAndConsume(ctx context.Context, intent oauthmodel.Intent, received string) (statetoken.Flow, bool, error)
}

type ExecutionGuard interface {
	ShouldProcess(ctx context.Context, code string) (bool, error)
	MarkCompleted(ctx context.Context, code string) error
	MarkFailed(ctx context.Context, code string) error
}

// leased is implemented by guards whose claims lapse on their own.
type leased interface {
	ProcessingTTL() time.Duration
}

type CodeExchanger interface {
	ExchangeForLogin(ctx context.Context, req oauthmodel.ExchangeRequest) (*session.AuthSession, error)
	ExchangeForLink(ctx context.Context, bearerAccessToken string, req oauthmodel.ExchangeRequest) (*exchange.LinkResult, error)
}

type SessionStore interface {
	Commit(ctx context.Context, s *session.AuthSession) error
	Load(ctx context.Context) (*session.AuthSession, error)
}

// Observer is told about every phase entered, e.g. to drive a progress view.
type Observer func(intent oauthmodel.Intent, phase Phase)

type Deps struct {
	States    StateVerifier
	Guard     ExecutionGuard
	Exchanger CodeExchanger
	Sessions  SessionStore
}

type Settings struct {
	LoginRedirectURI string
	LinkRedirectURI  string

	SuccessRedirectDelay time.Duration
	ErrorRedirectDelay   time.Duration

	DefaultDestination string
	ProfilePath        string
	LoginPath          string

	ExchangeTimeout time.Duration
}

type Controller struct {
	deps     Deps
	settings Settings
	observer Observer
}

type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

func New(deps Deps, settings Settings, opts ...Option) (*Controller, error) {
	switch {
	case deps.States == nil:
		return nil, errors.New("[callback.New] state verifier is required")
	case deps.Guard == nil:
		return nil, errors.New("[callback.New] execution guard is required")
	case deps.Exchanger == nil:
		return nil, errors.New("[callback.New] code exchanger is required")
	case deps.Sessions == nil:
		return nil, errors.New("[callback.New] session store is required")
	}
	if settings.ExchangeTimeout <= 0 {
		settings.ExchangeTimeout = defaultExchangeTimeout
	}
	// A claim that lapses mid-exchange lets a duplicate through.
	if g, ok := deps.Guard.(leased); ok && g.ProcessingTTL() <= settings.ExchangeTimeout {
		return nil, fmt.Errorf("[callback.New] guard processing TTL %s must exceed the exchange timeout %s",
			g.ProcessingTTL(), settings.ExchangeTimeout)
	}
	settings.DefaultDestination = utils.SafeRelativePath(settings.DefaultDestination, "/")
	settings.ProfilePath = utils.SafeRelativePath(settings.ProfilePath, "/profile")
	settings.LoginPath = utils.SafeRelativePath(settings.LoginPath, "/login")

	c := &Controller{deps: deps, settings: settings}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// run carries the per-invocation state of one Handle call.
type run struct {
	c      *Controller
	intent oauthmodel.Intent
	logger zerolog.Logger
	out    Outcome
}

func (r *run) enter(p Phase) {
	r.out.Phase = p
	r.out.Transitions = append(r.out.Transitions, p)
	if r.c.observer != nil {
		r.c.observer(r.intent, p)
	}
}

// Handle processes one callback invocation. It never returns an error: every
// failure ends as an ERROR or SKIPPED outcome.
func (c *Controller) Handle(ctx context.Context, intent oauthmodel.Intent, params oauthmodel.CallbackParameters) Outcome {
	r := &run{
		c:      c,
		intent: intent,
		logger: log.With().Str("intent", intent.Slot()).Logger(),
		out:    Outcome{Intent: intent},
	}
	r.enter(PhaseReceived)

	out := c.handle(ctx, r, params)
	metrics.CallbackOutcomes.WithLabelValues(intent.Slot(), string(out.Phase), string(out.Reason)).Inc()
	return out
}

func (c *Controller) handle(ctx context.Context, r *run, params oauthmodel.CallbackParameters) Outcome {
	if !r.intent.Valid() {
		return c.fail(r, ReasonExchangeFailed, oauthmodel.ErrUnknownIntent, oauthmodel.CallbackParameters{})
	}

	if params.HasProviderError() {
		return c.fail(r, ReasonProviderDenied, errors.New(params.Error), params)
	}
	if params.Code == "" {
		return c.fail(r, ReasonMissingCode, nil, params)
	}

	code := params.Code
	r.logger = r.logger.With().Str("guard_key", callbackguard.Key(code)).Logger()

	claimed, err := c.deps.Guard.ShouldProcess(ctx, code)
	if err != nil {
		return c.fail(r, ReasonExchangeFailed, err, params)
	}
	if !claimed {
		return c.skip(r)
	}

	r.enter(PhaseVerifyingState)
	flow, ok, err := c.deps.States.VerifyAndConsume(ctx, r.intent, params.State)
	if !ok {
		c.markFailed(ctx, r, code)
		return c.fail(r, ReasonCSRF, err, params)
	}
	r.out.FlowID = flow.FlowID
	r.logger = r.logger.With().Str("flow_id", flow.FlowID).Logger()

	r.enter(PhaseExchanging)
	// The exchange spends the single-use code, so it is not abandoned when
	// the caller goes away.
	xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.ExchangeTimeout)
	defer cancel()

	req := oauthmodel.ExchangeRequest{
		Code:        code,
		RedirectURI: c.redirectURI(r.intent),
		State:       params.State,
	}

	if r.intent == oauthmodel.IntentLink {
		return c.link(xctx, r, code, req)
	}
	return c.login(xctx, r, code, req, flow)
}

func (c *Controller) login(ctx context.Context, r *run, code string, req oauthmodel.ExchangeRequest, flow statetoken.Flow) Outcome {
	sess, err := c.deps.Exchanger.ExchangeForLogin(ctx, req)
	if err != nil {
		c.markFailed(ctx, r, code)
		return c.fail(r, ReasonExchangeFailed, err, oauthmodel.CallbackParameters{})
	}

	r.enter(PhaseCommitting)
	if err := c.deps.Sessions.Commit(ctx, sess); err != nil {
		c.markFailed(ctx, r, code)
		return c.fail(r, ReasonExchangeFailed, err, oauthmodel.CallbackParameters{})
	}
	c.markCompleted(ctx, r, code)

	r.out.IsNewUser = sess.IsNewUser
	msg := "Signed in with Google."
	if sess.IsNewUser {
		msg = "Welcome! Your account has been created."
	}
	return c.succeed(r, msg, utils.SafeRelativePath(flow.ReturnTo, c.settings.DefaultDestination))
}

func (c *Controller) link(ctx context.Context, r *run, code string, req oauthmodel.ExchangeRequest) Outcome {
	current, err := c.deps.Sessions.Load(ctx)
	if err != nil {
		c.markFailed(ctx, r, code)
		return c.fail(r, ReasonExchangeFailed, err, oauthmodel.CallbackParameters{})
	}

	res, err := c.deps.Exchanger.ExchangeForLink(ctx, current.AccessToken, req)
	if err != nil {
		c.markFailed(ctx, r, code)
		return c.fail(r, ReasonExchangeFailed, err, oauthmodel.CallbackParameters{})
	}

	r.enter(PhaseCommitting)
	c.markCompleted(ctx, r, code)

	msg := utils.Value(res).Message
	if msg == "" {
		msg = "Google account linked."
	}
	return c.succeed(r, msg, c.settings.ProfilePath)
}

func (c *Controller) succeed(r *run, message, redirectTo string) Outcome {
	r.enter(PhaseDone)
	r.out.Message = message
	r.out.RedirectTo = redirectTo
	r.out.RedirectAfter = c.settings.SuccessRedirectDelay
	r.logger.Info().Bool("new_user", r.out.IsNewUser).Msg("callback completed")
	return r.out
}

func (c *Controller) skip(r *run) Outcome {
	r.enter(PhaseSkipped)
	r.out.Reason = ReasonDuplicate
	r.out.Message = "This sign-in is already being processed."
	r.out.RedirectTo = c.defaultDestination(r.intent)
	r.out.RedirectAfter = 0
	metrics.GuardDuplicates.WithLabelValues(r.intent.Slot()).Inc()
	r.logger.Info().Msg("duplicate callback skipped")
	return r.out
}

func (c *Controller) fail(r *run, reason Reason, cause error, params oauthmodel.CallbackParameters) Outcome {
	r.enter(PhaseError)
	r.out.Reason = reason
	r.out.Err = &FlowError{Kind: reason, Err: cause}
	r.out.Message = message(r.intent, reason, cause, params)
	r.out.RedirectTo = c.errorDestination(r.intent)
	r.out.RedirectAfter = c.settings.ErrorRedirectDelay

	ev := r.logger.Error()
	if reason == ReasonProviderDenied {
		ev = r.logger.Warn().Str("provider_error", params.Error)
	}
	ev.Str("reason", string(reason)).AnErr("cause", cause).Msg("callback failed")
	return r.out
}

func (c *Controller) markFailed(ctx context.Context, r *run, code string) {
	if err := c.deps.Guard.MarkFailed(ctx, code); err != nil {
		r.logger.Warn().Err(err).Msg("could not mark callback record failed")
	}
}

func (c *Controller) markCompleted(ctx context.Context, r *run, code string) {
	if err := c.deps.Guard.MarkCompleted(ctx, code); err != nil {
		r.logger.Warn().Err(err).Msg("could not mark callback record completed")
	}
}

func (c *Controller) redirectURI(intent oauthmodel.Intent) string {
	if intent == oauthmodel.IntentLink {
		return c.settings.LinkRedirectURI
	}
	return c.settings.LoginRedirectURI
}

func (c *Controller) defaultDestination(intent oauthmodel.Intent) string {
	if intent == oauthmodel.IntentLink {
		return c.settings.ProfilePath
	}
	return c.settings.DefaultDestination
}

func (c *Controller) errorDestination(intent oauthmodel.Intent) string {
	if intent == oauthmodel.IntentLink {
		return c.settings.ProfilePath
	}
	return c.settings.LoginPath
}

func message(intent oauthmodel.Intent, reason Reason, cause error, params oauthmodel.CallbackParameters) string {
	switch reason {
	case ReasonProviderDenied:
		if params.Error == "access_denied" {
			return "Google access was denied."
		}
		return "Google reported an error: " + params.Error
	case ReasonMissingCode:
		return "No authorization code was received from Google."
	case ReasonCSRF:
		return "Security check failed. Please start again."
	}

	if errs.Is(cause, errs.ErrNotAuthenticated) {
		return "Sign in before linking a Google account."
	}
	var xerr *exchange.ExchangeError
	if errs.As(cause, &xerr) && xerr.Kind == exchange.KindRejected && xerr.Message != "" {
		return xerr.Message
	}
	if intent == oauthmodel.IntentLink {
		return "Could not link your Google account. Please try again."
	}
	return "Could not complete sign-in with Google. Please try again."
}
