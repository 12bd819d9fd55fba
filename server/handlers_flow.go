package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/jrsteele09/go-auth-link/callback"
	errs "github.com/jrsteele09/go-auth-link/internal/errors"
	"github.com/jrsteele09/go-auth-link/internal/utils"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/rs/zerolog/log"
)

// LoginStartHandler stores a LOGIN state token and sends the browser to the
// provider.
func (s *Server) LoginStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnTo := r.URL.Query().Get(returnToParam)
		req, err := s.deps.Flows.BuildLoginURL(r.Context(), returnTo)
		if err != nil {
			log.Error().Err(err).Msg("could not start login flow")
			http.Error(w, "could not start sign-in", http.StatusInternalServerError)
			return
		}
		redirectExternal(w, r, req.URL)
	}
}

// LinkStartHandler starts a LINK flow for the signed-in user. Without a
// session the browser goes to the login page first.
func (s *Server) LinkStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Sessions.Load(r.Context()); err != nil {
			if !errors.Is(err, errs.ErrNotAuthenticated) && !errors.Is(err, errs.ErrInvalidSession) {
				log.Error().Err(err).Msg("could not read session before linking")
			}
			redirectSuccess(w, r, withQuery(s.config.GetLoginPath(), returnToParam, s.config.GetProfilePath()))
			return
		}

		req, err := s.deps.Flows.BuildLinkURL(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("could not start link flow")
			http.Error(w, "could not start account linking", http.StatusInternalServerError)
			return
		}
		redirectExternal(w, r, req.URL)
	}
}

type callbackPageData struct {
	AppName      string
	Title        string
	Message      string
	Success      bool
	RedirectTo   string
	DelaySeconds int
}

// CallbackHandler runs the callback for intent and renders the result page,
// which redirects on its own after the outcome's delay.
func (s *Server) CallbackHandler(intent oauthmodel.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := oauthmodel.ParseCallbackParameters(r.URL.Query())
		out := s.deps.Callbacks.Handle(r.Context(), intent, params)

		if out.Phase == callback.PhaseSkipped {
			redirectSuccess(w, r, out.RedirectTo)
			return
		}

		data := callbackPageData{
			AppName:      s.config.GetAppName(),
			Title:        pageTitle(out),
			Message:      out.Message,
			Success:      out.Success(),
			RedirectTo:   out.RedirectTo,
			DelaySeconds: int(math.Ceil(out.RedirectAfter.Seconds())),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(statusFor(out))
		if err := s.callbackTmpl.Execute(w, data); err != nil {
			log.Error().Err(err).Msg("rendering callback page")
		}
	}
}

func pageTitle(out callback.Outcome) string {
	switch {
	case out.Success() && out.Intent == oauthmodel.IntentLink:
		return "Account linked"
	case out.Success():
		return "Signed in"
	case out.Intent == oauthmodel.IntentLink:
		return "Linking failed"
	default:
		return "Sign-in failed"
	}
}

func statusFor(out callback.Outcome) int {
	switch out.Reason {
	case callback.ReasonNone:
		return http.StatusOK
	case callback.ReasonCSRF:
		return http.StatusForbidden
	case callback.ReasonExchangeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// LogoutHandler clears the browser's session and returns to the login page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasBrowserScope(r) {
			redirectSuccess(w, r, utils.SafeRelativePath(s.config.GetLoginPath(), "/"))
			return
		}
		if err := s.deps.Sessions.Clear(r.Context()); err != nil {
			log.Error().Err(err).Msg("logout failed")
			http.Error(w, "could not sign out", http.StatusInternalServerError)
			return
		}
		redirectSuccess(w, r, utils.SafeRelativePath(s.config.GetLoginPath(), "/"))
	}
}

// SessionHandler returns the browser's published session state, re-derived
// from durable storage.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var state session.PublishedState
		if hasBrowserScope(r) {
			var err error
			if state, err = s.deps.State.Refresh(r.Context()); err != nil {
				log.Warn().Err(err).Msg("session refresh failed, serving last known state")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			log.Error().Err(err).Msg("encoding session state")
		}
	}
}

func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
