package authrequest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-link/authrequest"
	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/kvstore/memstore"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/statetoken"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type providerCfg struct {
	config.Provider
	base string
}

func (p providerCfg) GetLoginRedirectURL() string { return p.base + config.LoginCallbackPath }
func (p providerCfg) GetLinkRedirectURL() string  { return p.base + config.LinkCallbackPath }

func testConfig() providerCfg {
	return providerCfg{
		Provider: config.Provider{
			ClientID: "client-123",
			AuthURL:  "https://accounts.example.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.example.com/token",
			Scopes:   []string{"openid", "email", "profile"},
		},
		base: "https://app.example.com",
	}
}

func newBuilder(t *testing.T, opts ...authrequest.Option) (*authrequest.Builder, *statetoken.Store) {
	t.Helper()
	states, err := statetoken.New(memstore.New())
	require.NoError(t, err)
	b, err := authrequest.New(testConfig(), states, opts...)
	require.NoError(t, err)
	return b, states
}

func TestBuildLoginURL(t *testing.T) {
	b, states := newBuilder(t)
	ctx := context.Background()

	req, err := b.BuildLoginURL(ctx, "/tasks?view=week")
	require.NoError(t, err)
	require.Equal(t, oauthmodel.IntentLogin, req.Intent)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	require.Equal(t, "accounts.example.com", u.Host)

	q := u.Query()
	require.Equal(t, "client-123", q.Get("client_id"))
	require.Equal(t, "https://app.example.com/auth/google/callback", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Equal(t, req.State, q.Get("state"))

	flow, ok, err := states.VerifyAndConsume(ctx, oauthmodel.IntentLogin, req.State)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, req.FlowID, flow.FlowID)
	require.Equal(t, "/tasks?view=week", flow.ReturnTo)
}

func TestBuildLoginURL_UnsafeReturnToDropped(t *testing.T) {
	b, states := newBuilder(t)
	ctx := context.Background()

	req, err := b.BuildLoginURL(ctx, "https://evil.example.com/")
	require.NoError(t, err)

	flow, ok, err := states.VerifyAndConsume(ctx, oauthmodel.IntentLogin, req.State)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, flow.ReturnTo)
}

func TestBuildLinkURL(t *testing.T) {
	b, states := newBuilder(t)
	ctx := context.Background()

	req, err := b.BuildLinkURL(ctx)
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	require.Equal(t, "https://app.example.com/auth/google/link-callback", u.Query().Get("redirect_uri"))
	require.Equal(t, req.State, u.Query().Get("state"))

	_, ok, _ := states.VerifyAndConsume(ctx, oauthmodel.IntentLogin, req.State)
	require.False(t, ok)
	_, ok, err = states.VerifyAndConsume(ctx, oauthmodel.IntentLink, req.State)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuild_NewStateEachTime(t *testing.T) {
	b, _ := newBuilder(t)
	a, err := b.BuildLoginURL(context.Background(), "")
	require.NoError(t, err)
	c, err := b.BuildLoginURL(context.Background(), "")
	require.NoError(t, err)
	require.NotEqual(t, a.State, c.State)
}

type brokenIssuer struct{}

func (brokenIssuer) Issue(context.Context, oauthmodel.Intent, string) (statetoken.Flow, error) {
	return statetoken.Flow{}, errors.New("store unavailable")
}

func TestBuild_IssueFailure(t *testing.T) {
	b, err := authrequest.New(testConfig(), brokenIssuer{})
	require.NoError(t, err)
	_, err = b.BuildLinkURL(context.Background())
	require.Error(t, err)
}

func TestNew_RequiresClientID(t *testing.T) {
	cfg := testConfig()
	cfg.ClientID = ""
	_, err := authrequest.New(cfg, brokenIssuer{})
	require.Error(t, err)
}

func TestDiscoverEndpoint(t *testing.T) {
	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + "/authorize",
			"token_endpoint":                        issuer + "/token",
			"jwks_uri":                              issuer + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	t.Cleanup(srv.Close)
	issuer = srv.URL

	ep, err := authrequest.DiscoverEndpoint(context.Background(), issuer)
	require.NoError(t, err)
	require.Equal(t, issuer+"/authorize", ep.AuthURL)
	require.Equal(t, issuer+"/token", ep.TokenURL)

	b, _ := newBuilder(t, authrequest.WithEndpoint(ep))
	req, err := b.BuildLoginURL(context.Background(), "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(req.URL, issuer+"/authorize?"))
}

func TestWithEndpoint_Overrides(t *testing.T) {
	b, _ := newBuilder(t, authrequest.WithEndpoint(oauth2.Endpoint{AuthURL: "https://idp.test/auth"}))
	req, err := b.BuildLinkURL(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(req.URL, "https://idp.test/auth?"))
}
