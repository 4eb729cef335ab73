// Package xoauth performs the X (Twitter) OAuth2 authorization code flow with
// PKCE: authorization URL construction, code exchange, token refresh and
// profile lookup.
package xoauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthorizationURL = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL         = "https://api.twitter.com/2/oauth2/token"
	DefaultProfileURL       = "https://api.twitter.com/2/users/me"

	defaultTimeout  = 30 * time.Second
	maxProfileBytes = 1 << 20
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config holds the X application registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthorizationURL string
	TokenURL         string
	ProfileURL       string

	// HTTPClient is used for token and profile requests. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client
}

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// ExpiresIn returns the remaining lifetime in whole seconds, or 0 when the
// provider did not report an expiry.
func (t *TokenSet) ExpiresIn() int64 {
	if t.Expiry.IsZero() {
		return 0
	}
	return int64(time.Until(t.Expiry).Round(time.Second) / time.Second)
}

// Profile is the subset of the X user object used by the service.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type profileResponse struct {
	Data Profile `json:"data"`
}

// Client talks to the X OAuth2 and users endpoints. It holds no per-flow
// state and is safe for concurrent use.
type Client struct {
	oauth      oauth2.Config
	profileURL string
	httpClient *http.Client
}

// NewClient creates a client, filling unset endpoints and scopes with the X
// defaults.
func NewClient(cfg Config) *Client {
	authURL := cfg.AuthorizationURL
	if authURL == "" {
		authURL = DefaultAuthorizationURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	profileURL := cfg.ProfileURL
	if profileURL == "" {
		profileURL = DefaultProfileURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		profileURL: profileURL,
		httpClient: httpClient,
	}
}

// AuthorizationURL builds the URL the user agent is redirected to.
func (c *Client) AuthorizationURL(state, challenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethod),
	)
}

// ExchangeCode trades an authorization code and its PKCE verifier for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, toExchangeError(err)
	}
	return newTokenSet(token), nil
}

// RefreshToken obtains a new access token using a refresh token. When the
// provider does not rotate the refresh token the old one is kept.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, &ExchangeError{Err: errors.New("refresh token is empty")}
	}

	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, toExchangeError(err)
	}
	return newTokenSet(token), nil
}

// FetchProfile returns the X user that owns accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx = c.withHTTPClient(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileLookupFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrProfileLookupFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProfileLookupFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload profileResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrProfileLookupFailed, err)
	}
	if payload.Data.ID == "" || payload.Data.Username == "" {
		return nil, fmt.Errorf("%w: response missing id or username", ErrProfileLookupFailed)
	}

	return &payload.Data, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func newTokenSet(token *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	return ts
}
