package xoauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/dgellow/x-connect/internal/crypto"
	"golang.org/x/oauth2"
)

const (
	// ChallengeMethod is the only PKCE method supported.
	ChallengeMethod = "S256"

	stateBytes = 16
)

// PKCE is a code verifier and its derived S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GenerateState returns a fresh random OAuth state parameter.
func GenerateState() (string, error) {
	state, err := crypto.RandomHex(stateBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return state, nil
}

// GeneratePKCE returns a new verifier (32 random bytes, base64url without
// padding) and its S256 challenge.
func GeneratePKCE() (PKCE, error) {
	raw, err := crypto.RandomBytes(32)
	if err != nil {
		return PKCE{}, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// VerifyPKCE reports whether challenge is the S256 challenge of verifier.
func VerifyPKCE(verifier, challenge string) bool {
	h := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
