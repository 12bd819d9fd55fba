package oauthmodel_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	i, err := oauthmodel.ParseIntent("login")
	require.NoError(t, err)
	require.Equal(t, oauthmodel.IntentLogin, i)

	i, err = oauthmodel.ParseIntent(" LINK ")
	require.NoError(t, err)
	require.Equal(t, oauthmodel.IntentLink, i)
	require.Equal(t, "link", i.Slot())

	_, err = oauthmodel.ParseIntent("signup")
	require.ErrorIs(t, err, oauthmodel.ErrUnknownIntent)
}

func TestParseCallbackParameters(t *testing.T) {
	q, err := url.ParseQuery("code=4%2F0Ab&state=xyz&scope=openid+email")
	require.NoError(t, err)

	p := oauthmodel.ParseCallbackParameters(q)
	require.Equal(t, "4/0Ab", p.Code)
	require.Equal(t, "xyz", p.State)
	require.Equal(t, "openid email", p.Scope)
	require.False(t, p.HasProviderError())

	p = oauthmodel.ParseCallbackParameters(url.Values{"error": {"access_denied"}})
	require.True(t, p.HasProviderError())
	require.Empty(t, p.Code)
}
