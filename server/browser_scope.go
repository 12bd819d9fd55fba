package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/rs/zerolog/log"
)

const (
	// BrowserCookieName carries the id that scopes a browser's state and
	// session slots.
	BrowserCookieName = "authlink_browser"

	browserIDBytes      = 32
	browserCookieMaxAge = 180 * 24 * time.Hour
)

func newBrowserID() (string, error) {
	b := make([]byte, browserIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// validBrowserID accepts only ids this server could have minted.
func validBrowserID(id string) bool {
	if len(id) != base64.RawURLEncoding.EncodedLen(browserIDBytes) {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}) < 0
}

func browserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(BrowserCookieName)
	if err != nil || !validBrowserID(c.Value) {
		return "", false
	}
	return c.Value, true
}

func (s *Server) setBrowserCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     BrowserCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(browserCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   getScheme(r) == "https" || strings.HasPrefix(s.config.GetBaseURL(), "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

// BrowserMiddleware scopes storage to the browser named by the request's
// cookie. Requests without one run unscoped and see no state or session.
func (s *Server) BrowserMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := browserID(r); ok {
			r = r.WithContext(kvstore.WithScope(r.Context(), id))
		}
		next(w, r)
	}
}

// IssueBrowserMiddleware is BrowserMiddleware for routes that start a flow:
// a browser without a valid cookie is given a new id.
func (s *Server) IssueBrowserMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := browserID(r)
		if !ok {
			var err error
			if id, err = newBrowserID(); err != nil {
				log.Error().Err(err).Msg("could not mint browser id")
				http.Error(w, "could not start sign-in", http.StatusInternalServerError)
				return
			}
			s.setBrowserCookie(w, r, id)
		}
		next(w, r.WithContext(kvstore.WithScope(r.Context(), id)))
	}
}

func hasBrowserScope(r *http.Request) bool {
	return kvstore.ScopeFrom(r.Context()) != ""
}
