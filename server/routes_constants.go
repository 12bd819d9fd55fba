package server

import "github.com/jrsteele09/go-auth-link/internal/config"

// Route path constants
const (
	// Flow initiation
	RouteGoogleLogin = "/auth/google/login"
	RouteGoogleLink  = "/auth/google/link"

	// Provider callbacks, one per intent
	RouteGoogleCallback     = config.LoginCallbackPath
	RouteGoogleLinkCallback = config.LinkCallbackPath

	// Session
	RouteAuthLogout  = "/auth/logout"
	RouteAuthSession = "/auth/session"

	RouteMetrics = "/metrics"
)

// Query parameter carrying the page to return to after login.
const returnToParam = "return_to"
