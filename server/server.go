package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-link/authrequest"
	"github.com/jrsteele09/go-auth-link/callback"
	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/rs/zerolog/log"
)

// FlowStarter builds provider redirects.
type FlowStarter interface {
	BuildLoginURL(ctx context.Context, returnTo string) (authrequest.Request, error)
	BuildLinkURL(ctx context.Context) (authrequest.Request, error)
}

// CallbackHandler runs the callback state machine.
type CallbackHandler interface {
	Handle(ctx context.Context, intent oauthmodel.Intent, params oauthmodel.CallbackParameters) callback.Outcome
}

// SessionManager reads and clears the durable session.
type SessionManager interface {
	Load(ctx context.Context) (*session.AuthSession, error)
	Clear(ctx context.Context) error
}

// SessionView is the pull side of the published session state.
type SessionView interface {
	Refresh(ctx context.Context) (session.PublishedState, error)
}

type Deps struct {
	Flows     FlowStarter
	Callbacks CallbackHandler
	Sessions  SessionManager
	State     SessionView
}

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Deps

	callbackTmpl *template.Template
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("[Server New] config is required")
	case deps.Flows == nil, deps.Callbacks == nil, deps.Sessions == nil, deps.State == nil:
		return nil, errors.New("[Server New] flow, callback and session dependencies are required")
	}

	tmpl, err := ParseTemplate("callback.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		deps:         deps,
		callbackTmpl: tmpl,
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDevelopment {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Msgf("[%s] %s", colourMethod(parts[0]), parts[1])
		} else {
			log.Debug().Msgf("[*] %s", parts[0])
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
