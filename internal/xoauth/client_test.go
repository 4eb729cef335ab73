package xoauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURI:      "https://app.example.com/api/x/oauth/callback",
		AuthorizationURL: "https://x.example.com/i/oauth2/authorize",
		TokenURL:         srv.URL + "/2/oauth2/token",
		ProfileURL:       srv.URL + "/2/users/me",
	})
}

func TestAuthorizationURL(t *testing.T) {
	c := NewClient(Config{
		ClientID:    "client-id",
		RedirectURI: "https://app.example.com/api/x/oauth/callback",
	})

	raw := c.AuthorizationURL("state-123", "challenge-abc")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "twitter.com", u.Host)
	assert.Equal(t, "/i/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/api/x/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "tweet.read tweet.write users.read offline.access", q.Get("scope"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestAuthorizationURL_CustomScopes(t *testing.T) {
	c := NewClient(Config{ClientID: "id", Scopes: []string{"users.read"}})
	u, err := url.Parse(c.AuthorizationURL("s", "c"))
	require.NoError(t, err)
	assert.Equal(t, "users.read", u.Query().Get("scope"))
}

func TestExchangeCode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/2/oauth2/token", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok, "client credentials must use basic auth")
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)

			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "auth-code", r.PostForm.Get("code"))
			assert.Equal(t, "https://app.example.com/api/x/oauth/callback", r.PostForm.Get("redirect_uri"))
			assert.Equal(t, "my-verifier", r.PostForm.Get("code_verifier"))
			assert.Empty(t, r.PostForm.Get("client_secret"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "bearer",
				"expires_in":    7200,
				"scope":         "tweet.read users.read offline.access",
			})
		}))

		tokens, err := c.ExchangeCode(context.Background(), "auth-code", "my-verifier")
		require.NoError(t, err)
		assert.Equal(t, "access-1", tokens.AccessToken)
		assert.Equal(t, "refresh-1", tokens.RefreshToken)
		assert.Equal(t, "tweet.read users.read offline.access", tokens.Scope)
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), tokens.Expiry, time.Minute)
		assert.InDelta(t, 7200, tokens.ExpiresIn(), 60)
	})

	t.Run("provider rejects code", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"Value passed for the authorization code was invalid."}`))
		}))

		_, err := c.ExchangeCode(context.Background(), "bad", "verifier")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExchangeFailed)

		var exErr *ExchangeError
		require.True(t, errors.As(err, &exErr))
		assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
		assert.Contains(t, exErr.Body, "invalid_request")
	})

	t.Run("transport failure", func(t *testing.T) {
		c := NewClient(Config{ClientID: "id", TokenURL: "http://127.0.0.1:1/token"})

		_, err := c.ExchangeCode(context.Background(), "code", "verifier")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExchangeFailed)

		var exErr *ExchangeError
		require.True(t, errors.As(err, &exErr))
		assert.Zero(t, exErr.StatusCode)
	})
}

func TestRefreshToken(t *testing.T) {
	t.Run("rotates tokens", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-2",
				"refresh_token": "refresh-2",
				"token_type":    "bearer",
				"expires_in":    7200,
			})
		}))

		tokens, err := c.RefreshToken(context.Background(), "refresh-1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", tokens.AccessToken)
		assert.Equal(t, "refresh-2", tokens.RefreshToken)
	})

	t.Run("keeps refresh token when not rotated", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2",
				"token_type":   "bearer",
				"expires_in":   7200,
			})
		}))

		tokens, err := c.RefreshToken(context.Background(), "refresh-1")
		require.NoError(t, err)
		assert.Equal(t, "refresh-1", tokens.RefreshToken)
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}))

		_, err := c.RefreshToken(context.Background(), "refresh-1")
		assert.ErrorIs(t, err, ErrExchangeFailed)
	})

	t.Run("empty refresh token", func(t *testing.T) {
		c := NewClient(Config{ClientID: "id"})
		_, err := c.RefreshToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrExchangeFailed)
	})
}

func TestFetchProfile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/2/users/me", r.URL.Path)
			assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"2244994945","username":"XDevelopers","name":"Developers"}}`))
		}))

		profile, err := c.FetchProfile(context.Background(), "access-1")
		require.NoError(t, err)
		assert.Equal(t, "2244994945", profile.ID)
		assert.Equal(t, "XDevelopers", profile.Username)
		assert.Equal(t, "Developers", profile.Name)
	})

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"title":"Unauthorized"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "missing username", status: http.StatusOK, body: `{"data":{"id":"1"}}`},
		{name: "missing id", status: http.StatusOK, body: `{"data":{"username":"someone"}}`},
		{name: "missing data", status: http.StatusOK, body: `{}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.FetchProfile(context.Background(), "access-1")
			assert.ErrorIs(t, err, ErrProfileLookupFailed)
		})
	}
}

func TestTokenSet_ExpiresIn(t *testing.T) {
	assert.Zero(t, (&TokenSet{}).ExpiresIn())
	assert.InDelta(t, 60, (&TokenSet{Expiry: time.Now().Add(time.Minute)}).ExpiresIn(), 1)
}
