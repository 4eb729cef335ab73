package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dgellow/x-connect/internal/auth"
	"github.com/dgellow/x-connect/internal/config"
	"github.com/dgellow/x-connect/internal/crypto"
	"github.com/dgellow/x-connect/internal/session"
	"github.com/dgellow/x-connect/internal/storage"
	"github.com/dgellow/x-connect/internal/xoauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="

type tokenValidator map[string]string

func (v tokenValidator) Validate(_ context.Context, token string) (*session.User, error) {
	if id, ok := v[token]; ok {
		return &session.User{ID: id}, nil
	}
	return nil, session.ErrInvalidSession
}

func newFakeX(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "x-access",
			"refresh_token": "x-refresh",
			"token_type":    "bearer",
			"expires_in":    7200,
			"scope":         "tweet.read users.read offline.access",
		})
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"2244994945","username":"XDevelopers","name":"Developers"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, store storage.Storage) http.Handler {
	t.Helper()
	fakeX := newFakeX(t)

	cfg := config.Config{
		Server: config.ServerConfig{
			BaseURL:        "https://app.example.com/",
			AllowedOrigins: []string{"https://app.example.com"},
			ConnectionPage: "/x-connection",
		},
	}
	client := xoauth.NewClient(xoauth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/api/x/oauth/callback",
		TokenURL:     fakeX.URL + "/2/oauth2/token",
		ProfileURL:   fakeX.URL + "/2/users/me",
	})
	service := auth.NewXConnectService(client, crypto.NewTokenCipher(testEncryptionKey), store)

	return buildHTTPHandler(cfg, service, tokenValidator{"session-token": "user-1"})
}

func do(t *testing.T, h http.Handler, method, target, cookieHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer session-token")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConnectFlow(t *testing.T) {
	store := storage.NewMemoryStorage()
	h := newTestHandler(t, store)

	// Start
	rec := do(t, h, http.MethodGet, "/api/x/oauth/start", "")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.Len(t, state, 32)
	assert.Equal(t, "S256", location.Query().Get("code_challenge_method"))

	var flowCookies []string
	for _, c := range rec.Result().Cookies() {
		flowCookies = append(flowCookies, c.Name+"="+c.Value)
	}
	require.Len(t, flowCookies, 2)

	// Callback
	rec = do(t, h, http.MethodGet, "/api/x/oauth/callback?code=the-code&state="+state, strings.Join(flowCookies, "; "))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "https://app.example.com/x-connection", rec.Header().Get("Location"))

	record, err := store.GetXToken(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, "x-access", record.AccessTokenEncrypted)
	plain, err := crypto.NewTokenCipher(testEncryptionKey).Decrypt(record.AccessTokenEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "x-access", plain)

	// Status
	rec = do(t, h, http.MethodGet, "/api/x/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status.Data["connected"])
	assert.Equal(t, "XDevelopers", status.Data["x_username"])
	assert.Equal(t, "2244994945", status.Data["x_user_id"])
	assert.NotNil(t, status.Data["expires_at"])

	// Profile
	rec = do(t, h, http.MethodGet, "/api/x/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"id":"2244994945","username":"XDevelopers","name":"Developers"}}`, rec.Body.String())

	// Activity
	rec = do(t, h, http.MethodGet, "/api/x/activity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"x_connected"`)

	// Disconnect
	rec = do(t, h, http.MethodPost, "/api/x/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"disconnected":true},"message":"Disconnected successfully"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/x/status", "")
	assert.JSONEq(t, `{"data":{"connected":false,"x_username":null,"x_user_id":null,"expires_at":null}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/x/profile", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_StateMismatch(t *testing.T) {
	store := storage.NewMemoryStorage()
	h := newTestHandler(t, store)

	rec := do(t, h, http.MethodGet, "/api/x/oauth/callback?code=the-code&state=abc",
		"x_oauth_state=different; x_oauth_code_verifier=v")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid OAuth state"}`, rec.Body.String())

	_, err := store.GetXToken(context.Background(), "user-1")
	assert.ErrorIs(t, err, storage.ErrXTokenNotFound)
}

func TestRoutes_Unauthenticated(t *testing.T) {
	h := newTestHandler(t, storage.NewMemoryStorage())

	for _, path := range []string{"/api/x/oauth/start", "/api/x/oauth/callback", "/api/x/status", "/api/x/profile", "/api/x/activity"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
		})
	}
}

func TestRoutes_HealthAndPreflight(t *testing.T) {
	h := newTestHandler(t, storage.NewMemoryStorage())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/x/status", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupStorage(t *testing.T) {
	store, err := setupStorage(context.Background(), config.Config{Storage: config.StorageConfig{Kind: config.StorageKindMemory}})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, store)

	_, err = setupStorage(context.Background(), config.Config{Storage: config.StorageConfig{Kind: config.StorageKindFirestore}})
	assert.Error(t, err)
}

func TestNewXConnect_RejectsBadKey(t *testing.T) {
	_, err := NewXConnect(context.Background(), config.Config{EncryptionKey: "short"})
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrInvalidKeyConfiguration)
}
