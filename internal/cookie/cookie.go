package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/x-connect/internal/credential"
	"github.com/dgellow/x-connect/internal/envutil"
	"github.com/dgellow/x-connect/internal/log"
)

// Cookie names used during the X OAuth flow
const (
	OAuthStateCookie    = "x_oauth_state"
	OAuthVerifierCookie = "x_oauth_code_verifier"
)

// OAuthCookieMaxAge bounds how long a started flow can be completed
const OAuthCookieMaxAge = 10 * time.Minute

func setFlowCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// SetOAuthFlow stores the state and PKCE verifier on the user agent
func SetOAuthFlow(w http.ResponseWriter, state, verifier string) {
	setFlowCookie(w, OAuthStateCookie, state, OAuthCookieMaxAge)
	setFlowCookie(w, OAuthVerifierCookie, verifier, OAuthCookieMaxAge)

	log.LogTraceWithFields("cookie", "OAuth flow cookies set", map[string]any{
		"maxAge":   OAuthCookieMaxAge.String(),
		"secure":   !envutil.IsDev(),
		"sameSite": "Lax",
	})
}

// GetOAuthFlow returns the stored state and verifier; missing cookies yield
// empty strings
func GetOAuthFlow(r *http.Request) (state, verifier string) {
	state, _ = Get(r, OAuthStateCookie)
	verifier, _ = Get(r, OAuthVerifierCookie)
	return state, verifier
}

// ClearOAuthFlow removes both flow cookies
func ClearOAuthFlow(w http.ResponseWriter) {
	Clear(w, OAuthStateCookie)
	Clear(w, OAuthVerifierCookie)
	log.LogTraceWithFields("cookie", "OAuth flow cookies cleared", nil)
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Get retrieves a decoded cookie value from the request's Cookie header
func Get(r *http.Request, name string) (string, bool) {
	return credential.CookieValue(r.Header.Get("Cookie"), name)
}
