package config

import (
	"strings"
	"time"
)

// Provider callback routes, fixed per intent.
const (
	LoginCallbackPath = "/auth/google/callback"
	LinkCallbackPath  = "/auth/google/link-callback"
)

type ProviderConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAuthURL() string
	GetTokenURL() string
	GetIssuer() string
	GetScopes() []string
	GetLoginRedirectURL() string
	GetLinkRedirectURL() string
}

type BackendConfig interface {
	GetBackendURL() string
	GetBackendLoginPath() string
	GetBackendLinkPath() string
	GetExchangeTimeout() time.Duration
}

type FlowConfig interface {
	GetSuccessRedirectDelay() time.Duration
	GetErrorRedirectDelay() time.Duration
	GetDefaultDestination() string
	GetProfilePath() string
	GetLoginPath() string
	GetStateTokenMaxAge() time.Duration
	GetGuardProcessingTTL() time.Duration
	GetGuardRetention() time.Duration
}

type Provider struct {
	ClientID     string   `env:"OAUTH_CLIENT_ID"`
	ClientSecret string   `env:"OAUTH_CLIENT_SECRET"`
	AuthURL      string   `env:"OAUTH_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string   `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	Issuer       string   `env:"OAUTH_PROVIDER_ISSUER"`
	Scopes       []string `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
}

func (p Provider) GetClientID() string     { return p.ClientID }
func (p Provider) GetClientSecret() string { return p.ClientSecret }
func (p Provider) GetAuthURL() string      { return p.AuthURL }
func (p Provider) GetTokenURL() string     { return p.TokenURL }
func (p Provider) GetIssuer() string       { return p.Issuer }

func (p Provider) GetScopes() []string {
	scopes := make([]string, 0, len(p.Scopes))
	for _, s := range p.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Redirect URLs depend on the base URL, so they live on the composed config.
func (c mainConfig) GetLoginRedirectURL() string {
	return c.GetBaseURL() + LoginCallbackPath
}

func (c mainConfig) GetLinkRedirectURL() string {
	return c.GetBaseURL() + LinkCallbackPath
}

// GetGuardProcessingTTL defaults to twice the exchange timeout so a claim
// outlives the exchange it protects.
func (c mainConfig) GetGuardProcessingTTL() time.Duration {
	if c.Flow.GuardProcessingTTL > 0 {
		return c.Flow.GuardProcessingTTL
	}
	return 2 * c.GetExchangeTimeout()
}

type Backend struct {
	URL             string        `env:"BACKEND_URL" envDefault:"http://localhost:3000"`
	LoginPath       string        `env:"BACKEND_LOGIN_PATH" envDefault:"/api/auth/google/callback"`
	LinkPath        string        `env:"BACKEND_LINK_PATH" envDefault:"/api/auth/google/link"`
	ExchangeTimeout time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"30s"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendURL() string              { return strings.TrimRight(b.URL, "/") }
func (b Backend) GetBackendLoginPath() string        { return b.LoginPath }
func (b Backend) GetBackendLinkPath() string         { return b.LinkPath }
func (b Backend) GetExchangeTimeout() time.Duration { return b.ExchangeTimeout }

type Flow struct {
	SuccessRedirectDelay time.Duration `env:"SUCCESS_REDIRECT_DELAY" envDefault:"2s"`
	ErrorRedirectDelay   time.Duration `env:"ERROR_REDIRECT_DELAY" envDefault:"3s"`
	DefaultDestination   string        `env:"DEFAULT_DESTINATION" envDefault:"/"`
	ProfilePath          string        `env:"PROFILE_PATH" envDefault:"/profile"`
	LoginPath            string        `env:"LOGIN_PATH" envDefault:"/login"`
	StateTokenMaxAge     time.Duration `env:"STATE_TOKEN_MAX_AGE" envDefault:"10m"`
	GuardProcessingTTL   time.Duration `env:"GUARD_PROCESSING_TTL"`
	GuardRetention       time.Duration `env:"GUARD_RETENTION" envDefault:"24h"`
}

func (f Flow) GetSuccessRedirectDelay() time.Duration { return f.SuccessRedirectDelay }
func (f Flow) GetErrorRedirectDelay() time.Duration   { return f.ErrorRedirectDelay }
func (f Flow) GetDefaultDestination() string          { return f.DefaultDestination }
func (f Flow) GetProfilePath() string                 { return f.ProfilePath }
func (f Flow) GetLoginPath() string                   { return f.LoginPath }
func (f Flow) GetStateTokenMaxAge() time.Duration     { return f.StateTokenMaxAge }
func (f Flow) GetGuardRetention() time.Duration       { return f.GuardRetention }
