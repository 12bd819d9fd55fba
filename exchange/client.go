// Package exchange trades a provider authorization code for session
// credentials at the backend's token-exchange endpoints.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/internal/metrics"
	"github.com/jrsteele09/go-auth-link/internal/utils"
	"github.com/jrsteele09/go-auth-link/oauthmodel"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

// LinkResult is the backend's acknowledgement of a link request.
type LinkResult struct {
	Message string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type loginData struct {
	AccessToken       string       `json:"accessToken"`
	RefreshToken      string       `json:"refreshToken,omitempty"`
	User              session.User `json:"user"`
	GoogleAccessToken string       `json:"googleAccessToken,omitempty"`
	IsNewUser         bool         `json:"isNewUser"`
}

type Client struct {
	loginURL   string
	linkURL    string
	httpClient *http.Client
	nowTime    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func New(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.GetBackendURL() == "" {
		return nil, errors.New("[exchange.New] BACKEND_URL is required")
	}
	c := &Client{
		loginURL:   cfg.GetBackendURL() + cfg.GetBackendLoginPath(),
		linkURL:    cfg.GetBackendURL() + cfg.GetBackendLinkPath(),
		httpClient: &http.Client{Timeout: cfg.GetExchangeTimeout()},
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExchangeForLogin posts the code and returns the new session.
func (c *Client) ExchangeForLogin(ctx context.Context, req oauthmodel.ExchangeRequest) (*session.AuthSession, error) {
	start := c.nowTime()
	sess, err := c.exchangeForLogin(ctx, req)
	c.observe(oauthmodel.IntentLogin, start, err)
	return sess, err
}

func (c *Client) exchangeForLogin(ctx context.Context, req oauthmodel.ExchangeRequest) (*session.AuthSession, error) {
	env, err := c.post(ctx, c.httpClient, c.loginURL, req)
	if err != nil {
		return nil, err
	}

	var data loginData
	if len(env.Data) == 0 {
		return nil, &ExchangeError{Kind: KindMalformed, Message: "response has no data"}
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &ExchangeError{Kind: KindMalformed, Err: err}
	}
	if data.AccessToken == "" || data.User.ID == "" {
		return nil, &ExchangeError{Kind: KindMalformed, Message: "response lacks access token or user"}
	}

	return &session.AuthSession{
		AccessToken:         data.AccessToken,
		RefreshToken:        data.RefreshToken,
		User:                data.User,
		ProviderAccessToken: data.GoogleAccessToken,
		IsNewUser:           data.IsNewUser,
		ExpiresAt:           accessTokenExpiry(data.AccessToken),
		CreatedAt:           c.nowTime().UTC(),
	}, nil
}

// ExchangeForLink posts the code on behalf of the user identified by
// bearerAccessToken.
func (c *Client) ExchangeForLink(ctx context.Context, bearerAccessToken string, req oauthmodel.ExchangeRequest) (*LinkResult, error) {
	start := c.nowTime()
	res, err := c.exchangeForLink(ctx, bearerAccessToken, req)
	c.observe(oauthmodel.IntentLink, start, err)
	return res, err
}

func (c *Client) exchangeForLink(ctx context.Context, bearerAccessToken string, req oauthmodel.ExchangeRequest) (*LinkResult, error) {
	if bearerAccessToken == "" {
		return nil, &ExchangeError{Kind: KindRejected, Message: "not signed in"}
	}

	authCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(authCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: bearerAccessToken,
		TokenType:   "Bearer",
	}))

	env, err := c.post(ctx, hc, c.linkURL, req)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Message: env.Message}, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, endpoint string, body oauthmodel.ExchangeRequest) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ExchangeError{Kind: KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ExchangeError{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &ExchangeError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ExchangeError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{Kind: KindRejected, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, &ExchangeError{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", decodeErr)}
	}
	if !env.Success {
		return nil, &ExchangeError{Kind: KindRejected, StatusCode: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}

// accessTokenExpiry reads the exp claim when the access token is a JWT. The
// signature is not checked; the value is only a hint.
func accessTokenExpiry(accessToken string) *time.Time {
	tok, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	return utils.Ptr(exp.Time.UTC())
}

func (c *Client) observe(intent oauthmodel.Intent, start time.Time, err error) {
	result := "ok"
	var xerr *ExchangeError
	if errors.As(err, &xerr) {
		result = string(xerr.Kind)
	}
	metrics.ExchangeDuration.WithLabelValues(intent.Slot(), result).Observe(c.nowTime().Sub(start).Seconds())
	if err != nil {
		log.Warn().Str("intent", intent.Slot()).Str("result", result).Msg("code exchange failed")
	}
}
