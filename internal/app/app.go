// Package app wires the flow components together from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-link/authrequest"
	"github.com/jrsteele09/go-auth-link/callback"
	"github.com/jrsteele09/go-auth-link/callbackguard"
	"github.com/jrsteele09/go-auth-link/exchange"
	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/server"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/jrsteele09/go-auth-link/statetoken"
	"github.com/rs/zerolog/log"
)

type App struct {
	States    *statetoken.Store
	Guard     *callbackguard.Guard
	Requests  *authrequest.Builder
	Exchange  *exchange.Client
	Sessions  *session.Establisher
	State     *session.State
	Callbacks *callback.Controller
	Server    *server.Server

	unwatch func()
}

// Build assembles every component on top of store. State tokens and sessions
// live in per-browser slots; callback records are keyed by code alone so a
// code is claimed once whichever browser presents it.
func Build(ctx context.Context, cfg config.Config, store kvstore.NotifyingStore, exchangeOpts ...exchange.Option) (*App, error) {
	a := &App{}
	browsers := kvstore.NewScoped(store)
	var err error

	a.States, err = statetoken.New(browsers,
		statetoken.WithMaxAge(cfg.GetStateTokenMaxAge()),
		statetoken.WithVerificationBypass(cfg.GetSkipStateVerification()),
	)
	if err != nil {
		return nil, err
	}

	a.Guard, err = callbackguard.New(store,
		callbackguard.WithProcessingTTL(cfg.GetGuardProcessingTTL()),
		callbackguard.WithRetention(cfg.GetGuardRetention()),
	)
	if err != nil {
		return nil, err
	}

	var builderOpts []authrequest.Option
	if issuer := cfg.GetIssuer(); issuer != "" {
		ep, err := authrequest.DiscoverEndpoint(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("[app.Build] %w", err)
		}
		builderOpts = append(builderOpts, authrequest.WithEndpoint(ep))
	}
	a.Requests, err = authrequest.New(cfg, a.States, builderOpts...)
	if err != nil {
		return nil, err
	}

	a.Exchange, err = exchange.New(cfg, exchangeOpts...)
	if err != nil {
		return nil, err
	}

	a.State = session.NewState(browsers)
	a.Sessions, err = session.NewEstablisher(browsers, a.State)
	if err != nil {
		return nil, err
	}
	if a.unwatch, err = a.State.Watch(browsers); err != nil {
		return nil, err
	}

	a.Callbacks, err = callback.New(callback.Deps{
		States:    a.States,
		Guard:     a.Guard,
		Exchanger: a.Exchange,
		Sessions:  a.Sessions,
	}, callback.Settings{
		LoginRedirectURI:     cfg.GetLoginRedirectURL(),
		LinkRedirectURI:      cfg.GetLinkRedirectURL(),
		SuccessRedirectDelay: cfg.GetSuccessRedirectDelay(),
		ErrorRedirectDelay:   cfg.GetErrorRedirectDelay(),
		DefaultDestination:   cfg.GetDefaultDestination(),
		ProfilePath:          cfg.GetProfilePath(),
		LoginPath:            cfg.GetLoginPath(),
		ExchangeTimeout:      cfg.GetExchangeTimeout(),
	}, callback.WithObserver(logPhase))
	if err != nil {
		return nil, err
	}

	a.Server, err = server.New(cfg, server.Deps{
		Flows:     a.Requests,
		Callbacks: a.Callbacks,
		Sessions:  a.Sessions,
		State:     a.State,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close stops the session watcher.
func (a *App) Close() {
	if a.unwatch != nil {
		a.unwatch()
	}
}

func logPhase(intent oauthmodel.Intent, phase callback.Phase) {
	log.Debug().Str("intent", intent.Slot()).Str("phase", string(phase)).Msg("callback progress")
}
