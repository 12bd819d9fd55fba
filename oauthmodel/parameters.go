package oauthmodel

import (
	"net/url"
	"strings"
)

// CallbackParameters holds the query parameters the provider appends when it
// redirects the browser back to a callback route.
type CallbackParameters struct {
	// Code is the single-use authorization code.
	// Present on success, absent when the provider reports an error.
	Code string

	// State echoes the CSRF token embedded in the authorization URL.
	State string

	// Error is the provider error code, e.g. "access_denied" when the user
	// cancels the consent screen.
	Error string

	// ErrorDescription is the optional human-readable provider message.
	ErrorDescription string

	// Scope is the granted scope list, when the provider returns it.
	Scope string
}

func ParseCallbackParameters(q url.Values) CallbackParameters {
	return CallbackParameters{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            q.Get("state"),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: q.Get("error_description"),
		Scope:            q.Get("scope"),
	}
}

func (p CallbackParameters) HasProviderError() bool {
	return p.Error != ""
}
