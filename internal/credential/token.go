// Package credential locates the caller's bearer token in an Authorization
// header or in the session cookies set by the auth service's browser client.
//
// Every function here treats its input as attacker-controlled: malformed
// headers and cookie values produce "not found", never an error or a panic.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
)

const (
	// AccessTokenCookie holds the raw session token when set directly.
	AccessTokenCookie = "sb-access-token"

	// base64Marker prefixes auth-token cookie values that carry base64url JSON.
	base64Marker = "base64-"

	// maxDecodeDepth bounds nested base64 wrapping.
	maxDecodeDepth = 8
)

// authTokenCookiePattern matches the per-project session cookie, e.g.
// "sb-abcdefgh-auth-token".
var authTokenCookiePattern = regexp.MustCompile(`^sb-.*-auth-token$`)

// IsAuthTokenCookie reports whether name follows the auth-token cookie naming
// convention.
func IsAuthTokenCookie(name string) bool {
	return authTokenCookiePattern.MatchString(name)
}

// ExtractBearerToken returns the token from an "Authorization: Bearer <token>"
// header value. Any other scheme, or a missing token, is not found.
func ExtractBearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	parts := strings.Split(header, " ")
	if len(parts) < 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// FromCookieHeader finds the session token in a raw Cookie header.
func FromCookieHeader(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	return FromCookieStore(ParseCookieHeader(header))
}

// FromCookieStore finds the session token in a cookie store. The direct
// access-token cookie wins; otherwise auth-token cookies are tried in order
// and the first one that decodes to a non-empty token is returned.
func FromCookieStore(store CookieReader) (string, bool) {
	if store == nil {
		return "", false
	}

	if direct, ok := store.Get(AccessTokenCookie); ok && direct.Value != "" {
		return decodeCookieValue(direct.Value), true
	}

	for _, c := range store.GetAll() {
		if !IsAuthTokenCookie(c.Name) {
			continue
		}
		if token, ok := parseAuthTokenCookie(c.Value, 0); ok {
			return token, true
		}
	}
	return "", false
}

// decodeResult is what a decode step reports back to the chain.
type decodeResult int

const (
	tryNext decodeResult = iota
	found
	abandon
)

// decodeStep inspects an already URL-decoded cookie value.
type decodeStep func(value string, depth int) (string, decodeResult)

// authTokenDecoders run in order; the raw fallback always terminates.
var authTokenDecoders = []decodeStep{
	decodeBase64Wrapped,
	decodeJSONToken,
	decodeRawToken,
}

func parseAuthTokenCookie(value string, depth int) (string, bool) {
	if depth > maxDecodeDepth {
		return "", false
	}

	decoded := decodeCookieValue(value)
	for _, step := range authTokenDecoders {
		token, result := step(decoded, depth)
		switch result {
		case found:
			return token, token != ""
		case abandon:
			return "", false
		}
	}
	return "", false
}

// decodeBase64Wrapped unwraps "base64-<base64url>" and re-enters the chain
// with the payload.
func decodeBase64Wrapped(value string, depth int) (string, decodeResult) {
	encoded, ok := strings.CutPrefix(value, base64Marker)
	if !ok {
		return "", tryNext
	}

	payload, err := decodeBase64URL(encoded)
	if err != nil || payload == "" {
		return "", abandon
	}

	token, ok := parseAuthTokenCookie(payload, depth+1)
	if !ok {
		return "", abandon
	}
	return token, found
}

// decodeJSONToken accepts a JSON string, an array whose first element is a
// string, or an object with a string access_token.
func decodeJSONToken(value string, _ int) (string, decodeResult) {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return "", tryNext
	}

	switch v := parsed.(type) {
	case string:
		return v, found
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s, found
			}
		}
	case map[string]any:
		if s, ok := v["access_token"].(string); ok {
			return s, found
		}
	}
	return "", tryNext
}

func decodeRawToken(value string, _ int) (string, decodeResult) {
	return value, found
}

// decodeBase64URL decodes base64url with or without padding. Standard
// alphabet characters are normalized first.
func decodeBase64URL(value string) (string, error) {
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(value)
	normalized = strings.TrimRight(normalized, "=")

	data, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
