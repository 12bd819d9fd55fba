package oauthmodel

// ExchangeRequest is the body posted to the backend token-exchange endpoints.
type ExchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}
