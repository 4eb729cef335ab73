package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/x-connect/internal/crypto"
	"github.com/dgellow/x-connect/internal/log"
	"github.com/dgellow/x-connect/internal/storage"
	"github.com/dgellow/x-connect/internal/xoauth"
)

const (
	// OAuthStateExpiry is how long the state and verifier cookies live
	OAuthStateExpiry = 10 * time.Minute

	// TokenRefreshThreshold is how early to refresh tokens before expiry
	TokenRefreshThreshold = 5 * time.Minute

	// DefaultActivityLimit caps Activity when no limit is given
	DefaultActivityLimit = 20
)

var (
	// ErrInvalidStateOrVerifier means the callback could not be tied to a
	// flow started by this user agent.
	ErrInvalidStateOrVerifier = errors.New("invalid OAuth state")

	// ErrNotConnected means the user has no stored X connection.
	ErrNotConnected = errors.New("X account not connected")

	// ErrStoreFailed wraps storage failures while saving a connection.
	ErrStoreFailed = errors.New("failed to save X tokens")

	// ErrAuditLogFailed means the primary operation succeeded but its audit
	// entry could not be written.
	ErrAuditLogFailed = errors.New("failed to write audit log")
)

// XClient is the subset of the X OAuth engine used by the service.
type XClient interface {
	AuthorizationURL(state, challenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*xoauth.TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*xoauth.TokenSet, error)
	FetchProfile(ctx context.Context, accessToken string) (*xoauth.Profile, error)
}

// AuthorizationRequest is everything needed to redirect the user to X. State
// and Verifier must be persisted on the user agent until the callback.
type AuthorizationRequest struct {
	URL      string
	State    string
	Verifier string
}

// CallbackParams carries the values presented at the OAuth callback.
type CallbackParams struct {
	Code string
	// State is the value X echoed back in the query string.
	State string
	// StoredState and Verifier come from the cookies set at Start.
	StoredState string
	Verifier    string
}

// Connection describes a freshly stored X connection.
type Connection struct {
	XUserID   string
	XUsername string
	ExpiresAt time.Time
	Scope     string
}

// Status is the connection summary shown to the user.
type Status struct {
	Connected bool
	XUsername string
	XUserID   string
	ExpiresAt time.Time
}

// XConnectService links users to their X accounts.
type XConnectService struct {
	client    XClient
	encryptor crypto.Encryptor
	store     storage.Storage
	now       func() time.Time
}

func NewXConnectService(client XClient, encryptor crypto.Encryptor, store storage.Storage) *XConnectService {
	return &XConnectService{
		client:    client,
		encryptor: encryptor,
		store:     store,
		now:       time.Now,
	}
}

// Start begins a new authorization flow.
func (s *XConnectService) Start() (*AuthorizationRequest, error) {
	state, err := xoauth.GenerateState()
	if err != nil {
		return nil, err
	}
	pkce, err := xoauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		URL:      s.client.AuthorizationURL(state, pkce.Challenge),
		State:    state,
		Verifier: pkce.Verifier,
	}, nil
}

// Complete finishes the flow: it checks the state, exchanges the code,
// looks up the X profile and stores the encrypted tokens.
func (s *XConnectService) Complete(ctx context.Context, userID string, params CallbackParams) (*Connection, error) {
	if !validState(params) {
		log.LogWarnWithFields("x_connect", "Rejected OAuth callback with invalid state", map[string]any{
			"user":         userID,
			"has_state":    params.StoredState != "",
			"has_verifier": params.Verifier != "",
		})
		return nil, ErrInvalidStateOrVerifier
	}

	tokens, err := s.client.ExchangeCode(ctx, params.Code, params.Verifier)
	if err != nil {
		log.LogErrorWithFields("x_connect", "Failed to exchange code for token", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return nil, err
	}

	profile, err := s.client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		log.LogErrorWithFields("x_connect", "Failed to fetch X profile", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return nil, err
	}

	record, err := s.sealTokens(tokens)
	if err != nil {
		return nil, err
	}
	record.UserID = userID
	record.XUserID = profile.ID
	record.XUsername = profile.Username

	if err := s.store.UpsertXToken(ctx, record); err != nil {
		log.LogErrorWithFields("x_connect", "Failed to store X tokens", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	if err := s.audit(ctx, userID, storage.AuditXConnected); err != nil {
		log.LogWarnWithFields("x_connect", "Failed to write audit log", map[string]any{
			"user":   userID,
			"action": string(storage.AuditXConnected),
			"error":  err.Error(),
		})
	}

	log.LogInfoWithFields("x_connect", "X account connected", map[string]any{
		"user":       userID,
		"x_user_id":  profile.ID,
		"x_username": profile.Username,
	})

	return &Connection{
		XUserID:   profile.ID,
		XUsername: profile.Username,
		ExpiresAt: record.ExpiresAt,
		Scope:     record.Scope,
	}, nil
}

// Disconnect removes the user's X connection. An audit failure after a
// successful delete is reported as ErrAuditLogFailed.
func (s *XConnectService) Disconnect(ctx context.Context, userID string) error {
	if err := s.store.DeleteXToken(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete X tokens: %w", err)
	}

	if err := s.audit(ctx, userID, storage.AuditXDisconnected); err != nil {
		log.LogErrorWithFields("x_connect", "Failed to write audit log", map[string]any{
			"user":   userID,
			"action": string(storage.AuditXDisconnected),
			"error":  err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrAuditLogFailed, err)
	}

	log.LogInfoWithFields("x_connect", "X account disconnected", map[string]any{
		"user": userID,
	})
	return nil
}

// Status reports whether the user is connected.
func (s *XConnectService) Status(ctx context.Context, userID string) (*Status, error) {
	record, err := s.store.GetXToken(ctx, userID)
	if errors.Is(err, storage.ErrXTokenNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load X connection: %w", err)
	}

	return &Status{
		Connected: true,
		XUsername: record.XUsername,
		XUserID:   record.XUserID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// AccessToken returns a usable plaintext access token for the user,
// refreshing it first when it expires within TokenRefreshThreshold. A failed
// refresh is logged and the current token returned.
func (s *XConnectService) AccessToken(ctx context.Context, userID string) (string, error) {
	record, err := s.store.GetXToken(ctx, userID)
	if errors.Is(err, storage.ErrXTokenNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("failed to load X connection: %w", err)
	}

	accessToken, err := s.encryptor.Decrypt(record.AccessTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}

	if !s.needsRefresh(record) {
		return accessToken, nil
	}

	refreshed, err := s.refresh(ctx, record)
	if err != nil {
		log.LogWarnWithFields("x_connect", "Failed to refresh X token, using current token", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return accessToken, nil
	}
	return refreshed, nil
}

// Profile fetches the live X profile for the user's connection.
func (s *XConnectService) Profile(ctx context.Context, userID string) (*xoauth.Profile, error) {
	accessToken, err := s.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.FetchProfile(ctx, accessToken)
}

// Activity returns the user's most recent audit entries.
func (s *XConnectService) Activity(ctx context.Context, userID string, limit int) ([]storage.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	entries, err := s.store.ListAuditLogs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}

func (s *XConnectService) needsRefresh(record *storage.XToken) bool {
	if record.RefreshTokenEncrypted == "" || record.ExpiresAt.IsZero() {
		return false
	}
	return record.ExpiresAt.Sub(s.now()) <= TokenRefreshThreshold
}

func (s *XConnectService) refresh(ctx context.Context, record *storage.XToken) (string, error) {
	refreshToken, err := s.encryptor.Decrypt(record.RefreshTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	tokens, err := s.client.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	updated, err := s.sealTokens(tokens)
	if err != nil {
		return "", err
	}
	updated.UserID = record.UserID
	updated.XUserID = record.XUserID
	updated.XUsername = record.XUsername
	if updated.Scope == "" {
		updated.Scope = record.Scope
	}

	if err := s.store.UpsertXToken(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}

	if err := s.audit(ctx, record.UserID, storage.AuditXTokenRefreshed); err != nil {
		log.LogWarnWithFields("x_connect", "Failed to write audit log", map[string]any{
			"user":   record.UserID,
			"action": string(storage.AuditXTokenRefreshed),
			"error":  err.Error(),
		})
	}

	log.LogInfoWithFields("x_connect", "X token refreshed", map[string]any{
		"user":   record.UserID,
		"expiry": updated.ExpiresAt,
	})
	return tokens.AccessToken, nil
}

// sealTokens encrypts a token set into a record without identity fields.
func (s *XConnectService) sealTokens(tokens *xoauth.TokenSet) (*storage.XToken, error) {
	accessEncrypted, err := s.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var refreshEncrypted string
	if tokens.RefreshToken != "" {
		refreshEncrypted, err = s.encryptor.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	return &storage.XToken{
		AccessTokenEncrypted:  accessEncrypted,
		RefreshTokenEncrypted: refreshEncrypted,
		ExpiresAt:             tokens.Expiry,
		Scope:                 tokens.Scope,
		UpdatedAt:             s.now(),
	}, nil
}

func (s *XConnectService) audit(ctx context.Context, userID string, action storage.AuditAction) error {
	return s.store.InsertAuditLog(ctx, storage.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: storage.ResourceXToken,
		CreatedAt:    s.now(),
	})
}

func validState(p CallbackParams) bool {
	if p.StoredState == "" || p.Verifier == "" || p.State == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.State), []byte(p.StoredState)) == 1
}
