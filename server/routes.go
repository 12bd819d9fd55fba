package server

import (
	"github.com/jrsteele09/go-auth-link/internal/metrics"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
)

func (s *Server) initRoutes() {
	// Flow initiation
	s.RegisterRouteHandler("GET "+RouteGoogleLogin, ChainMiddleware(s.LoginStartHandler(), s.HTMLMiddleWare(s.IssueBrowserMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteGoogleLink, ChainMiddleware(s.LinkStartHandler(), s.HTMLMiddleWare(s.IssueBrowserMiddleware)...))

	// Provider callbacks
	s.RegisterRouteHandler("GET "+RouteGoogleCallback, ChainMiddleware(s.CallbackHandler(oauthmodel.IntentLogin), s.HTMLMiddleWare(s.BrowserMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteGoogleLinkCallback, ChainMiddleware(s.CallbackHandler(oauthmodel.IntentLink), s.HTMLMiddleWare(s.BrowserMiddleware)...))

	// Session API
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.SameOriginMiddleware, s.BrowserMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.BrowserMiddleware)...))
	s.RegisterRouteHandler("OPTIONS "+RouteAuthSession, ChainMiddleware(preflightHandler, s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAuthLogout, ChainMiddleware(preflightHandler, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler())
}
