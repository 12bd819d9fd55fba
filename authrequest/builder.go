// Package authrequest builds the provider authorization URLs that start the
// login and link flows.
package authrequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/internal/utils"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/statetoken"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// StateIssuer persists a fresh state token for an intent.
type StateIssuer interface {
	Issue(ctx context.Context, intent oauthmodel.Intent, returnTo string) (statetoken.Flow, error)
}

// Request is a ready-to-follow authorization redirect.
type Request struct {
	Intent oauthmodel.Intent
	URL    string
	State  string
	FlowID string
}

type Builder struct {
	states StateIssuer
	login  *oauth2.Config
	link   *oauth2.Config
}

type Option func(*builderOptions)

type builderOptions struct {
	endpoint *oauth2.Endpoint
}

// WithEndpoint overrides the configured provider endpoints, e.g. with the
// result of DiscoverEndpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(o *builderOptions) {
		o.endpoint = &ep
	}
}

func New(cfg config.ProviderConfig, states StateIssuer, opts ...Option) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("[authrequest.New] provider config is required")
	}
	if states == nil {
		return nil, errors.New("[authrequest.New] state issuer is required")
	}
	if cfg.GetClientID() == "" {
		return nil, errors.New("[authrequest.New] OAUTH_CLIENT_ID is required")
	}

	o := builderOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  cfg.GetAuthURL(),
		TokenURL: cfg.GetTokenURL(),
	}
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	base := oauth2.Config{
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		Endpoint:     endpoint,
		Scopes:       cfg.GetScopes(),
	}
	login, link := base, base
	login.RedirectURL = cfg.GetLoginRedirectURL()
	link.RedirectURL = cfg.GetLinkRedirectURL()

	return &Builder{states: states, login: &login, link: &link}, nil
}

// BuildLoginURL issues a LOGIN state token and returns the provider URL.
// returnTo is kept with the state only when it is a same-site path.
func (b *Builder) BuildLoginURL(ctx context.Context, returnTo string) (Request, error) {
	return b.build(ctx, oauthmodel.IntentLogin, utils.SafeRelativePath(returnTo, ""))
}

// BuildLinkURL issues a LINK state token and returns the provider URL.
func (b *Builder) BuildLinkURL(ctx context.Context) (Request, error) {
	return b.build(ctx, oauthmodel.IntentLink, "")
}

// RedirectURL is the callback URL registered for intent.
func (b *Builder) RedirectURL(intent oauthmodel.Intent) string {
	if intent == oauthmodel.IntentLink {
		return b.link.RedirectURL
	}
	return b.login.RedirectURL
}

func (b *Builder) build(ctx context.Context, intent oauthmodel.Intent, returnTo string) (Request, error) {
	flow, err := b.states.Issue(ctx, intent, returnTo)
	if err != nil {
		return Request{}, fmt.Errorf("[authrequest] issuing %s state: %w", intent, err)
	}

	cfg := b.login
	if intent == oauthmodel.IntentLink {
		cfg = b.link
	}
	authURL := cfg.AuthCodeURL(flow.Token, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	log.Info().Str("intent", intent.Slot()).Str("flow_id", flow.FlowID).Msg("authorization request built")
	return Request{
		Intent: intent,
		URL:    authURL,
		State:  flow.Token,
		FlowID: flow.FlowID,
	}, nil
}

// DiscoverEndpoint reads the provider's endpoints from its OpenID
// configuration document.
func DiscoverEndpoint(ctx context.Context, issuer string) (oauth2.Endpoint, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return provider.Endpoint(), nil
}
